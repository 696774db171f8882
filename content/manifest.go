package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"rocksniff/song"
)

// SidecarSuffix is appended to a content file name to find its manifest.
const SidecarSuffix = ".json"

type manifest struct {
	Songs []*song.Details `json:"songs"`
}

// Manifest reads song details from JSON manifests. For "x.psarc" it looks at
// "x.psarc.json" first and falls back to the file itself when that starts
// with a JSON object. Archives it cannot read yield nil.
type Manifest struct{}

func (Manifest) Parse(path, hash string) (map[string]*song.Details, error) {
	data, err := os.ReadFile(path + SidecarSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, nil
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("bad manifest for %s: %w", path, err)
	}

	out := make(map[string]*song.Details, len(m.Songs))
	for _, d := range m.Songs {
		if d == nil || strings.TrimSpace(d.SongID) == "" {
			continue
		}
		d.FileHash = hash
		out[d.SongID] = d
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
