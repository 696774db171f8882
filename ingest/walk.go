package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ContentExt is the extension of every content archive.
const ContentExt = ".psarc"

// PackageSuffix marks the PC build of a downloadable archive.
const PackageSuffix = "_p" + ContentExt

func isContentFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ContentExt)
}

// walkDirs calls visit for root and every directory below it, following
// symlinked directories. Each resolved directory is visited once.
func walkDirs(root string, visit func(dir string, entries []os.DirEntry)) error {
	seen := make(map[string]bool)
	var walk func(dir string) error
	walk = func(dir string) error {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return err
		}
		if seen[real] {
			return nil
		}
		seen[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		visit(dir, entries)

		for _, e := range entries {
			sub := filepath.Join(dir, e.Name())
			if e.Type()&fs.ModeSymlink != 0 {
				fi, err := os.Stat(sub)
				if err != nil || !fi.IsDir() {
					continue
				}
			} else if !e.IsDir() {
				continue
			}
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// ContentFiles lists <base>/songs.psarc, if present, and every package
// archive under <base>/dlc.
func ContentFiles(base string) ([]string, error) {
	var files []string
	if fi, err := os.Stat(filepath.Join(base, "songs"+ContentExt)); err == nil && !fi.IsDir() {
		files = append(files, filepath.Join(base, "songs"+ContentExt))
	}

	dlc := filepath.Join(base, "dlc")
	if _, err := os.Stat(dlc); err != nil {
		return files, nil
	}
	err := walkDirs(dlc, func(dir string, entries []os.DirEntry) {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), PackageSuffix) {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	})
	return files, err
}
