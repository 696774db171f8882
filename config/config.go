// Package config loads rocksniff settings from a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"rocksniff/cache"
	"rocksniff/diag"
	"rocksniff/telemetry"
)

var ErrInvalid = errors.New("invalid settings")

const DefaultPath = "rocksniff.json"

type Addon struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`

	// Secret, when set, requires a bearer token signed with it on every
	// endpoint except /health.
	Secret string `json:"secret,omitempty"`
}

type Settings struct {
	ProcessName           string               `json:"process_name"`
	Edition               telemetry.Edition    `json:"edition"`
	ContentDir            string               `json:"content_dir"`
	EnableAutoEnumeration bool                 `json:"enable_auto_enumeration"`
	Parallelism           int                  `json:"parallelism"`
	Cache                 cache.Options        `json:"cache"`
	Addon                 Addon                `json:"addon"`
	Diagnostics           map[diag.Toggle]bool `json:"diagnostics"`
	ProfilePath           string               `json:"profile_path,omitempty"`
}

func Default() Settings {
	return Settings{
		ProcessName:           "Rocksmith2014.exe",
		Edition:               telemetry.EditionRemastered,
		EnableAutoEnumeration: true,
		Cache:                 cache.Options{Backend: cache.BackendSQLite, DSN: "cache.sqlite"},
		Addon:                 Addon{Listen: "127.0.0.1:9938"},
		Diagnostics:           map[diag.Toggle]bool{},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("bad settings file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes s as indented JSON.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func (s Settings) Validate() error {
	if s.ProcessName == "" {
		return fmt.Errorf("%w: process_name is empty", ErrInvalid)
	}
	if _, err := s.Edition.Delta(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if s.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism %d", ErrInvalid, s.Parallelism)
	}
	switch s.Cache.Backend {
	case cache.BackendMemory, cache.BackendSQLite, cache.BackendPostgres, cache.BackendFile, cache.BackendNull, "":
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalid, cache.ErrUnknownBackend, s.Cache.Backend)
	}
	for t := range s.Diagnostics {
		if _, ok := diag.Parse(string(t)); !ok {
			return fmt.Errorf("%w: unknown diagnostic %q", ErrInvalid, t)
		}
	}
	if s.Addon.Enabled && s.Addon.Listen == "" {
		return fmt.Errorf("%w: addon enabled without a listen address", ErrInvalid)
	}
	return nil
}

// Profile returns the memory profile for the configured edition, overlaid
// with ProfilePath when set.
func (s Settings) Profile() (telemetry.Profile, error) {
	p, err := telemetry.DefaultProfile(s.Edition)
	if err != nil {
		return telemetry.Profile{}, err
	}
	if s.ProfilePath == "" {
		return p, nil
	}
	return telemetry.LoadProfile(s.ProfilePath, p)
}
