// Package addon serves the sniffer's current view as JSON for overlays and
// other local consumers.
package addon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"rocksniff/diag"
	"rocksniff/sniffer"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
)

// Source is what the server reports on. *sniffer.Sniffer implements it.
type Source interface {
	Snapshot() sniffer.Snapshot
}

type Options struct {
	// Secret enables bearer token auth on everything but /health.
	Secret string
}

type Server struct {
	e    *echo.Echo
	src  Source
	opts Options
	log  diag.Logger
}

func New(src Source, opts Options, d *diag.Diagnostics) *Server {
	s := &Server{e: echo.New(), src: src, opts: opts, log: d.Logger("addon")}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	s.e.Use(s.requestLog)
	if opts.Secret != "" {
		s.e.Use(middleware.JWTWithConfig(middleware.JWTConfig{
			SigningKey: []byte(opts.Secret),
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
		}))
	}

	s.e.GET("/", s.snapshotHandler)
	s.e.GET("/health", healthHandler)
	s.e.GET("/readout", s.readoutHandler)
	s.e.GET("/state", s.stateHandler)
	s.e.GET("/song", s.songHandler)
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Infoln("Addon listening on", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		s.log.Debugln("method="+c.Request().Method, "uri="+c.Request().RequestURI, "status=", c.Response().Status)
		return err
	}
}

// NewToken issues a bearer token for a server started with secret.
func NewToken(secret, subject string, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["sub"] = subject
	claims["exp"] = time.Now().Add(ttl).Unix()
	return token.SignedString([]byte(secret))
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) snapshotHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.src.Snapshot())
}

func (s *Server) readoutHandler(c echo.Context) error {
	snap := s.src.Snapshot()
	if snap.Readout == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"message": "no readout yet",
		})
	}
	return c.JSON(http.StatusOK, snap.Readout)
}

func (s *Server) stateHandler(c echo.Context) error {
	snap := s.src.Snapshot()
	return c.JSON(http.StatusOK, echo.Map{
		"state":   snap.State,
		"session": snap.Session,
	})
}

func (s *Server) songHandler(c echo.Context) error {
	snap := s.src.Snapshot()
	if !snap.Song.IsValid() {
		return c.JSON(http.StatusNotFound, echo.Map{
			"message": "no song",
		})
	}
	return c.JSON(http.StatusOK, snap.Song)
}
