package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rocksniff/diag"
	"rocksniff/process"
)

// hircPattern is the ASCII tag of a Wwise soundbank HIRC section.
var hircPattern = process.AOB{Pattern: []byte{0x48, 0x49, 0x52, 0x43}}

// HIRCConfig bounds the soundbank search. Start and End are relative to the
// module base.
type HIRCConfig struct {
	Start     uint64 `json:"start"`
	End       uint64 `json:"end"`
	ChunkSize int    `json:"chunk_size"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
	MaxLen    int32  `json:"max_len"`
}

func DefaultHIRCConfig() HIRCConfig {
	return HIRCConfig{
		Start:     0x10000000,
		End:       0x40000000,
		ChunkSize: DefaultChunkSize,
		Prefix:    "Song_",
		Suffix:    "_Preview",
		MaxLen:    1000,
	}
}

// HIRCLocator finds the preview soundbank of the selected song and reads the
// song key out of its STID section.
//
// Layout at a candidate p:
//
//	p+0          "HIRC"
//	p+4          int32 HIRC length
//	p+8+hLen     int32 STID length
//	STID[16]     name length byte
//	STID[17:]    name, e.g. "Song_ABC123_Preview"
type HIRCLocator struct {
	mem  process.MemoryAccess
	cfg  HIRCConfig
	diag *diag.Diagnostics

	trusted Trusted
	invalid map[process.ProcessMemoryAddress]struct{}
}

func NewHIRCLocator(mem process.MemoryAccess, cfg HIRCConfig, d *diag.Diagnostics) *HIRCLocator {
	return &HIRCLocator{
		mem:     mem,
		cfg:     cfg,
		diag:    d,
		invalid: make(map[process.ProcessMemoryAddress]struct{}),
	}
}

// SongID returns the song key when a trusted HIRC block is known or can be
// found. Scanning only happens when nothing is trusted and the previous timer
// was zero; soundbanks are unloaded during play.
func (h *HIRCLocator) SongID(ctx context.Context, prevTimer float32) (string, bool) {
	if _, ok := h.trusted.Get(); !ok && prevTimer == 0 {
		m, err := h.Find(ctx)
		switch {
		case err == nil:
			h.diag.Debug(diag.HIRCScan, "hirc", "HIRC addr:", m.Address.ToString())
			h.trusted.Set(m)
		case errors.Is(err, ErrNotFound):
			h.diag.Debug(diag.HIRCScan, "hirc", "Could not find valid HIRC pointer")
		default:
			h.diag.Debug(diag.HIRCScan, "hirc", "HIRC addr fetch failed:", err)
		}
	}

	m, ok := h.trusted.Get()
	if !ok {
		return "", false
	}

	v, err := h.Validate(m.Address)
	if err != nil {
		if errors.Is(err, ErrInvalidCandidate) {
			// Bank was unloaded; forget it without blacklisting.
			h.trusted.Demote()
		} else {
			h.Revalidate()
		}
		return "", false
	}

	name, err := h.readName(v)
	if err != nil || !strings.HasPrefix(name, h.cfg.Prefix) {
		h.Revalidate()
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, h.cfg.Prefix), h.cfg.Suffix), true
}

// Revalidate discredits the trusted block so the next scan skips it.
func (h *HIRCLocator) Revalidate() {
	m, ok := h.trusted.Demote()
	if !ok {
		return
	}
	h.diag.Debug(diag.HIRCScan, "hirc", "Revalidating HIRC pointer", m.Address.ToString())
	h.invalid[m.Address] = struct{}{}
}

// Trusted exposes the current block for diagnostics.
func (h *HIRCLocator) Trusted() (Match, bool) {
	return h.trusted.Get()
}

// Find scans for HIRC tags and returns the first candidate, in address order,
// that validates and has not been discredited. When none validates the
// discredited set is cleared so old candidates get another chance.
func (h *HIRCLocator) Find(ctx context.Context) (Match, error) {
	base, err := h.mem.ModuleBase()
	if err != nil {
		return Match{}, err
	}

	hits, err := ScanPattern(ctx, h.mem, hircPattern, uint64(base)+h.cfg.Start, uint64(base)+h.cfg.End, h.cfg.ChunkSize)
	if err != nil {
		return Match{}, err
	}
	if len(hits) > 0 {
		h.diag.Debug(diag.HIRCScan, "hirc", "Found", len(hits), "candidate HIRC pointers,", len(h.invalid), "invalid")
	}

	for _, addr := range hits {
		if _, bad := h.invalid[addr]; bad {
			continue
		}
		if m, err := h.Validate(addr); err == nil {
			return m, nil
		}
	}

	clear(h.invalid)
	return Match{}, ErrNotFound
}

// Validate checks the HIRC and STID lengths and the STID name decoration.
func (h *HIRCLocator) Validate(addr process.ProcessMemoryAddress) (Match, error) {
	tag, err := h.mem.ReadMemory(addr, 4)
	if err != nil {
		return Match{}, err
	}
	if !hircPattern.Match(tag) {
		return Match{}, fmt.Errorf("%w: no HIRC tag at %s", ErrInvalidCandidate, addr.ToString())
	}

	hLen, err := process.ReadINT32(h.mem, addr+4)
	if err != nil {
		return Match{}, err
	}
	hLen += 4
	if hLen > h.cfg.MaxLen || hLen < 4 {
		return Match{}, fmt.Errorf("%w: HIRC length %d", ErrInvalidCandidate, hLen)
	}

	sLen, err := process.ReadINT32(h.mem, addr.Add(8+int64(hLen)))
	if err != nil {
		return Match{}, err
	}
	sLen += 4
	if sLen > h.cfg.MaxLen || sLen <= 4 {
		return Match{}, fmt.Errorf("%w: STID length %d", ErrInvalidCandidate, sLen)
	}

	m := Match{Address: addr, HeaderLen: int(hLen), BodyLen: int(sLen)}
	name, err := h.readName(m)
	if err != nil {
		return Match{}, err
	}
	if !strings.HasPrefix(name, h.cfg.Prefix) || !strings.HasSuffix(name, h.cfg.Suffix) {
		return Match{}, fmt.Errorf("%w: STID name %q", ErrInvalidCandidate, name)
	}
	return m, nil
}

func (h *HIRCLocator) readName(m Match) (string, error) {
	stid, err := h.mem.ReadMemory(m.Address.Add(8+int64(m.HeaderLen)), process.ProcessMemorySize(m.BodyLen))
	if err != nil {
		return "", err
	}
	if len(stid) < 17 {
		return "", fmt.Errorf("%w: STID of %d bytes", ErrInvalidCandidate, len(stid))
	}
	n := int(stid[16])
	if 17+n > len(stid) {
		return "", fmt.Errorf("%w: STID name of %d bytes overruns section", ErrInvalidCandidate, n)
	}
	name := string(stid[17 : 17+n])
	h.diag.Debug(diag.HIRCScan, "hirc", "HIRC->STID->name =", name)
	return name, nil
}
