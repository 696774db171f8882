package cache

import (
	"path/filepath"
	"sync"

	"rocksniff/diag"
	"rocksniff/song"
)

type entry struct {
	hash    string
	details map[string]*song.Details
}

// MemoryCache keeps path -> {songID -> details} in a map. It is safe for
// concurrent use.
type MemoryCache struct {
	mu    sync.RWMutex
	files map[string]*entry
	diag  *diag.Diagnostics
}

func NewMemoryCache(d *diag.Diagnostics) *MemoryCache {
	return &MemoryCache{files: make(map[string]*entry), diag: d}
}

func (c *MemoryCache) Contains(path, hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.files[path]
	return ok && e.hash == hash
}

func (c *MemoryCache) Get(songID string) *song.Details {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.files {
		if d, ok := e.details[songID]; ok {
			return d
		}
	}
	return nil
}

// Add records the file under the FileHash its details carry.
func (c *MemoryCache) Add(path string, details map[string]*song.Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(path, "", details)
	return nil
}

func (c *MemoryCache) Replace(path, hash string, details map[string]*song.Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path, songIDs(details))
	c.addLocked(path, hash, details)
	return nil
}

// addLocked stores details for path. An empty hash falls back to the
// details' FileHash.
func (c *MemoryCache) addLocked(path, hash string, details map[string]*song.Details) {
	e, ok := c.files[path]
	if !ok {
		e = &entry{details: make(map[string]*song.Details)}
		c.files[path] = e
	}
	if hash != "" {
		e.hash = hash
	}
	for id, d := range details {
		e.details[id] = d
		if hash == "" && d != nil && d.FileHash != "" {
			e.hash = d.FileHash
		}
		c.diag.Debug(diag.Cache, "cache", "Cached", filepath.Base(path)+"/"+id)
	}
}

func (c *MemoryCache) Remove(path string, songIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path, songIDs)
	return nil
}

// removeLocked returns the other paths whose entries changed.
func (c *MemoryCache) removeLocked(path string, songIDs []string) []string {
	delete(c.files, path)

	var touched []string
	for p, e := range c.files {
		changed := false
		for _, id := range songIDs {
			if _, ok := e.details[id]; ok {
				delete(e.details, id)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if len(e.details) == 0 {
			delete(c.files, p)
		}
		touched = append(touched, p)
	}
	return touched
}

func songIDs(details map[string]*song.Details) []string {
	ids := make([]string, 0, len(details))
	for id := range details {
		ids = append(ids, id)
	}
	return ids
}

func (c *MemoryCache) Close() error {
	return nil
}
