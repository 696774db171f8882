// Package telemetry samples the game's memory once per tick and turns it
// into readouts.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rocksniff/diag"
	"rocksniff/pod"
	"rocksniff/pointer"
	"rocksniff/process"
	"rocksniff/readout"
	"rocksniff/scanner"
)

var (
	ErrNoChain      = errors.New("profile has no chain for this value")
	ErrUnresolved   = errors.New("pointer chain did not resolve")
	ErrMagicInvalid = errors.New("struct magic mismatch")
	ErrUnvalidated  = errors.New("layout has no magic to validate against")
)

// Reader owns its trusted pointers and working readout; Tick must only be
// called from one goroutine.
type Reader struct {
	mem      process.MemoryAccess
	profile  Profile
	resolver *pointer.Resolver
	magic    *scanner.MagicScanner
	hirc     *scanner.HIRCLocator
	diag     *diag.Diagnostics
	log      diag.Logger

	moduleBase process.ProcessMemoryAddress

	learnASong  scanner.Trusted
	scoreAttack scanner.Trusted

	cur  readout.Readout
	last readout.Readout
}

func NewReader(mem process.MemoryAccess, profile Profile, d *diag.Diagnostics) *Reader {
	if profile.MaxStringLen <= 0 {
		profile.MaxStringLen = 128
	}
	r := &Reader{
		mem:      mem,
		profile:  profile,
		resolver: pointer.NewResolver(mem, d),
		magic:    scanner.NewMagicScanner(mem, d),
		diag:     d,
		log:      d.Logger("telemetry"),
	}
	if profile.SongID.IsZero() {
		r.hirc = scanner.NewHIRCLocator(mem, profile.HIRC, d)
	}
	return r
}

func (r *Reader) Profile() Profile {
	return r.profile
}

// Tick samples memory once and returns the last known good readout. Fields
// that cannot be read keep their previous values.
func (r *Reader) Tick(ctx context.Context) (*readout.Readout, error) {
	base, err := r.base()
	if err != nil {
		return nil, err
	}
	prevTimer := r.last.SongTimer

	r.readSongID(ctx, base, prevTimer)
	r.readTimer(base)
	r.readStrings(base)
	r.readNoteData(ctx, base, prevTimer)

	if r.cur.SongTimer > 0 {
		r.last = r.cur
	}
	r.last.SongID = r.cur.SongID
	r.last.SongTimer = r.cur.SongTimer

	out := r.last
	r.diag.Debug(diag.MemoryReadout, "telemetry", out.String())
	return &out, nil
}

func (r *Reader) base() (process.ProcessMemoryAddress, error) {
	if !r.moduleBase.IsNull() {
		return r.moduleBase, nil
	}
	base, err := r.mem.ModuleBase()
	if err != nil {
		return process.NullAddress, fmt.Errorf("module base: %w", err)
	}
	r.moduleBase = base
	return base, nil
}

func (r *Reader) readSongID(ctx context.Context, base process.ProcessMemoryAddress, prevTimer float32) {
	if r.hirc != nil {
		if id, ok := r.hirc.SongID(ctx, prevTimer); ok {
			r.cur.SongID = id
		}
		return
	}

	s, err := r.readString(base, r.profile.SongID)
	if err != nil {
		r.diag.Debug(diag.MemoryReadout, "telemetry", "song id:", err)
		return
	}
	if id, ok := DecodeSongID(s, r.profile.SongIDPrefix, r.profile.SongIDSuffix); ok {
		r.cur.SongID = id
	}
}

// DecodeSongID strips prefix and suffix from s. Strings without both, or
// with nothing between them, are rejected.
func DecodeSongID(s, prefix, suffix string) (string, bool) {
	if len(s) <= len(prefix)+len(suffix) || !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return "", false
	}
	return s[len(prefix) : len(s)-len(suffix)], true
}

func (r *Reader) readTimer(base process.ProcessMemoryAddress) {
	addr := r.resolver.ResolveChain(base, r.profile.SongTimer)
	if addr.IsNull() {
		return
	}
	t, err := process.ReadFLOAT32(r.mem, addr)
	if err != nil {
		r.diag.Debug(diag.MemoryReadout, "telemetry", "song timer:", err)
		return
	}
	r.cur.SongTimer = t
}

func (r *Reader) readStrings(base process.ProcessMemoryAddress) {
	if s, err := r.readString(base, r.profile.ArrangementHash); err == nil && s != "" {
		r.cur.ArrangementID = s
	}
	if s, err := r.readString(base, r.profile.CurrentMenu); err == nil && len(s) >= r.profile.MinStageLen {
		r.cur.GameStage = s
	}
}

func (r *Reader) readString(base process.ProcessMemoryAddress, c pointer.Chain) (string, error) {
	if c.IsZero() {
		return "", ErrNoChain
	}
	addr := r.resolver.ResolveChain(base, c)
	if addr.IsNull() {
		return "", fmt.Errorf("%s: %w", c, ErrUnresolved)
	}
	return process.ReadNTS(r.mem, addr, process.ProcessMemorySize(r.profile.MaxStringLen))
}

// readNoteData tries the learn a song struct, then score attack. Only a
// struct whose magic matches is published.
func (r *Reader) readNoteData(ctx context.Context, base process.ProcessMemoryAddress, prevTimer float32) {
	if nd, ok := readLayout[learnASongLayout](ctx, r, base, prevTimer, r.profile.LearnASong, &r.learnASong); ok {
		r.cur.Mode = readout.ModeLearnASong
		r.cur.NoteData = nd
		return
	}
	if nd, ok := readLayout[scoreAttackLayout](ctx, r, base, prevTimer, r.profile.ScoreAttack, &r.scoreAttack); ok {
		r.cur.Mode = readout.ModeScoreAttack
		r.cur.NoteData = nd
		return
	}
	r.cur.Mode = readout.ModeUnknown
	r.cur.NoteData = nil
}

type noteLayout interface {
	learnASongLayout | scoreAttackLayout
	counts() readout.Counts
	noteData() readout.NoteData
}

func readLayout[T noteLayout](ctx context.Context, r *Reader, base process.ProcessMemoryAddress, prevTimer float32, layout NoteLayout, trusted *scanner.Trusted) (readout.NoteData, bool) {
	if !layout.Chain.IsZero() {
		if addr := r.resolver.ResolveChain(base, layout.Chain); !addr.IsNull() {
			nd, err := decodeLayout[T](r, addr, layout.check())
			if err == nil {
				return nd, true
			}
			r.diag.Debug(diag.MemoryReadout, "telemetry", "note data at", addr.ToString(), err)
		}
	}

	if layout.Scan == nil {
		return nil, false
	}

	m, ok := trusted.Get()
	if !ok {
		if prevTimer != 0 {
			return nil, false
		}
		found, err := r.magic.Scan(ctx, *layout.Scan)
		if err != nil {
			r.diag.Debug(diag.MagicScan, "telemetry", "magic scan:", err)
			return nil, false
		}
		r.diag.Debug(diag.MagicScan, "telemetry", "magic scan found", found)
		trusted.Set(found)
		m = found
	}

	nd, err := decodeLayout[T](r, m.Address, layout.check())
	if err != nil {
		r.diag.Debug(diag.MagicScan, "telemetry", "dropping trusted pointer", m.Address.ToString(), err)
		trusted.Demote()
		return nil, false
	}
	return nd, true
}

func decodeLayout[T noteLayout](r *Reader, addr process.ProcessMemoryAddress, check *MagicCheck) (readout.NoteData, error) {
	if check == nil {
		return nil, ErrUnvalidated
	}
	v, err := process.ReadINT32(r.mem, addr.Add(check.Offset))
	if err != nil {
		return nil, err
	}
	if v != check.Value {
		return nil, fmt.Errorf("%w: %#x != %#x", ErrMagicInvalid, v, check.Value)
	}

	l, err := pod.ReadAt[T](r.mem, addr)
	if err != nil {
		return nil, err
	}
	if !plausible(l.counts()) {
		return nil, fmt.Errorf("%w: implausible counters %+v", ErrMagicInvalid, l.counts())
	}
	return l.noteData(), nil
}

// TriggerEnumeration sets the game's enumerate flag so it rescans its
// content directories. It is safe to call alongside Tick.
func (r *Reader) TriggerEnumeration() error {
	base, err := r.mem.ModuleBase()
	if err != nil {
		return fmt.Errorf("module base: %w", err)
	}
	if r.profile.EnumerationFlag.IsZero() {
		return ErrNoChain
	}
	addr := r.resolver.ResolveChain(base, r.profile.EnumerationFlag)
	if addr.IsNull() {
		return fmt.Errorf("enumeration flag: %w", ErrUnresolved)
	}
	if err := r.mem.WriteMemory(addr, []byte{1}); err != nil {
		return fmt.Errorf("enumeration flag at %s: %w", addr.ToString(), err)
	}
	r.log.Infoln("Triggered enumeration")
	return nil
}
