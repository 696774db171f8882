// Package scanner finds structures in the game's memory when no static
// pointer chain reaches them.
package scanner

import (
	"errors"
	"fmt"

	"rocksniff/process"
)

var (
	ErrNotFound = errors.New("no valid candidate")

	// ErrInvalidCandidate marks a hit whose surrounding bytes do not look
	// like the structure being searched for.
	ErrInvalidCandidate = errors.New("invalid candidate")

	ErrInvalidPattern = errors.New("invalid pattern")
)

// Match is a scan hit together with the lengths that validated it.
type Match struct {
	Address   process.ProcessMemoryAddress
	HeaderLen int
	BodyLen   int
}

func (m Match) String() string {
	return fmt.Sprintf("%s (header %d, body %d)", m.Address.ToString(), m.HeaderLen, m.BodyLen)
}

// Trusted holds at most one validated Match. It is owned by a single
// goroutine and has no locking.
type Trusted struct {
	match Match
	ok    bool
}

func (t *Trusted) Get() (Match, bool) {
	return t.match, t.ok
}

func (t *Trusted) Set(m Match) {
	t.match = m
	t.ok = true
}

// Demote forgets the match and returns it.
func (t *Trusted) Demote() (Match, bool) {
	m, ok := t.match, t.ok
	t.match = Match{}
	t.ok = false
	return m, ok
}
