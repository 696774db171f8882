package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rocksniff/diag"
	"rocksniff/song"
)

type fileRecord struct {
	Path  string                   `json:"path"`
	Hash  string                   `json:"hash"`
	Songs map[string]*song.Details `json:"songs"`
}

// FileCache is a MemoryCache mirrored to one JSON file per content file
// under dir.
type FileCache struct {
	*MemoryCache
	dir string
}

func NewFileCache(dir string, d *diag.Diagnostics) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	c := &FileCache{MemoryCache: NewMemoryCache(d), dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		var rec fileRecord
		if err := readRecord(filepath.Join(dir, de.Name()), &rec); err != nil {
			d.Logger("cache").Warn("Skipping unreadable cache file", de.Name(), err)
			continue
		}
		c.files[rec.Path] = &entry{hash: rec.Hash, details: rec.Songs}
	}
	d.Debug(diag.Cache, "cache", "Loaded", len(c.files), "cached files from", dir)
	return c, nil
}

func (c *FileCache) Add(path string, details map[string]*song.Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(path, "", details)
	return c.persist(path)
}

func (c *FileCache) Remove(path string, songIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistAll(path, c.removeLocked(path, songIDs))
}

func (c *FileCache) Replace(path, hash string, details map[string]*song.Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	touched := c.removeLocked(path, songIDs(details))
	c.addLocked(path, hash, details)
	return c.persistAll(path, touched)
}

func (c *FileCache) persistAll(path string, touched []string) error {
	if err := c.persist(path); err != nil {
		return err
	}
	for _, p := range touched {
		if err := c.persist(p); err != nil {
			return err
		}
	}
	return nil
}

// persist writes or deletes the record for path. Callers hold c.mu for
// writing.
func (c *FileCache) persist(path string) error {
	name := c.recordName(path)
	e, ok := c.files[path]
	if !ok {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(fileRecord{Path: path, Hash: e.hash, Songs: e.details}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, "record-*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func (c *FileCache) recordName(path string) string {
	sum := sha1.Sum([]byte(path))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

func readRecord(name string, rec *fileRecord) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return err
	}
	if rec.Songs == nil {
		rec.Songs = make(map[string]*song.Details)
	}
	return nil
}
