package process_blob

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"
)

type metadata struct {
	PID        process.ProcessID `json:"pid"`
	Name       string            `json:"name"`
	ModuleBase uint64            `json:"module_base"`
	Handles    []process.Handle  `json:"handles,omitempty"`
}

// SaveOptions controls which regions end up in a dump.
type SaveOptions struct {
	Name string

	// All keeps file-backed mappings, which are otherwise skipped.
	All bool

	// MaxRegionSize skips regions larger than this. Zero means 100 MB.
	MaxRegionSize uint

	// Timeout bounds the whole save. Zero means 30 seconds.
	Timeout time.Duration
}

// SaveStats counts what happened to each region.
type SaveStats struct {
	Saved       int
	NotReadable int
	TooLarge    int
	FileBacked  int
	ReadErrors  int
}

// Save writes metadata, the region table and one blob file per captured
// region of mem into dirname.
func Save(ctx context.Context, mem process.MemoryAccess, dirname string, opts SaveOptions) (SaveStats, error) {
	var stats SaveStats
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dump-save"))

	if opts.MaxRegionSize == 0 {
		opts.MaxRegionSize = 100 * 1024 * 1024
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	regions, err := mem.Regions()
	if err != nil {
		return stats, fmt.Errorf("failed to read regions: %w", err)
	}

	meta := metadata{PID: mem.GetPID(), Name: opts.Name}
	if base, err := mem.ModuleBase(); err == nil {
		meta.ModuleBase = uint64(base)
	}
	if handles, err := mem.ListHandles(); err == nil {
		meta.Handles = handles
	}
	if err := writeJSON(filepath.Join(dirname, metadataFile), meta); err != nil {
		return stats, err
	}
	if err := writeJSON(filepath.Join(dirname, memoryMapFile), regions); err != nil {
		return stats, err
	}

	log.Infoln("Saving", len(regions), "regions of", meta.PID, "to", dirname)
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("save aborted after %d regions: %w", stats.Saved, err)
		}

		switch {
		case !region.IsReadable():
			stats.NotReadable++
			continue
		case region.Size > opts.MaxRegionSize:
			log.Debugln("Skipping large region at", fmt.Sprintf("%x", region.Address), "(size:", region.Size/1024/1024, "MB)")
			stats.TooLarge++
			continue
		case region.Path != "" && region.Path[0] == '/' && !opts.All:
			stats.FileBacked++
			continue
		}

		data, err := mem.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil && len(data) == 0 {
			log.Debugln("Failed to read region at", fmt.Sprintf("%x", region.Address), ":", err)
			stats.ReadErrors++
			continue
		}

		if err := os.WriteFile(filepath.Join(dirname, blobName(region)), data, 0644); err != nil {
			return stats, fmt.Errorf("failed to write blob for 0x%x: %w", region.Address, err)
		}
		stats.Saved++
	}

	log.Infoln("Dump saved:", stats.Saved, "regions,", stats.ReadErrors, "read errors")
	return stats, nil
}

// Load reads a dump written by Save back into an Image.
func Load(dirname string) (*Image, error) {
	var meta metadata
	if err := readJSON(filepath.Join(dirname, metadataFile), &meta); err != nil {
		return nil, err
	}
	var regions []memory_map.MemoryMapItem
	if err := readJSON(filepath.Join(dirname, memoryMapFile), &regions); err != nil {
		return nil, err
	}

	im := NewImage(meta.PID, meta.Name)
	im.SetModuleBase(process.ProcessMemoryAddress(meta.ModuleBase))
	im.SetHandles(meta.Handles)

	for _, region := range regions {
		data, err := os.ReadFile(filepath.Join(dirname, blobName(region)))
		if os.IsNotExist(err) {
			im.AddRegion(region, nil)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blob for 0x%x: %w", region.Address, err)
		}
		im.AddRegion(region, data)
	}
	return im, nil
}

func blobName(region memory_map.MemoryMapItem) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}
