// Package cache stores song details per content file so they survive
// restarts and are looked up by song key while the game runs.
package cache

import (
	"errors"
	"fmt"

	"rocksniff/diag"
	"rocksniff/song"
)

var ErrUnknownBackend = errors.New("unknown cache backend")

// Cache is keyed by (path, hash) for freshness and by song ID for lookup.
type Cache interface {
	// Contains reports whether path was cached with exactly this hash.
	Contains(path, hash string) bool

	// Get returns nil when the song is unknown.
	Get(songID string) *song.Details

	Add(path string, details map[string]*song.Details) error

	// Remove drops everything cached for path, and any entry for the given
	// song IDs wherever it came from.
	Remove(path string, songIDs []string) error

	// Replace is Remove of path and the keys of details followed by Add,
	// committed at once and recorded under hash. Readers never see the
	// songs missing in between.
	Replace(path, hash string, details map[string]*song.Details) error

	Close() error
}

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendFile     Backend = "file"
	BackendNull     Backend = "null"
)

// Options select and locate a backend. DSN is the database source for the
// SQL backends and the directory for the file backend.
type Options struct {
	Backend Backend `json:"backend"`
	DSN     string  `json:"dsn"`
}

func Open(opts Options, d *diag.Diagnostics) (Cache, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryCache(d), nil
	case BackendSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = "cache.sqlite"
		}
		return NewSQLCache("sqlite3", dsn, d)
	case BackendPostgres:
		return NewSQLCache("postgres", opts.DSN, d)
	case BackendFile:
		dir := opts.DSN
		if dir == "" {
			dir = "cache"
		}
		return NewFileCache(dir, d)
	case BackendNull:
		return NullCache{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

// NullCache caches nothing.
type NullCache struct{}

func (NullCache) Contains(string, string) bool               { return false }
func (NullCache) Get(string) *song.Details                   { return nil }
func (NullCache) Add(string, map[string]*song.Details) error { return nil }
func (NullCache) Remove(string, []string) error              { return nil }
func (NullCache) Close() error                               { return nil }

func (NullCache) Replace(string, string, map[string]*song.Details) error { return nil }
