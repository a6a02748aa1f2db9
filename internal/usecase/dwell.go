package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TieBreak decides between identifiers with equal dwell time.
type TieBreak string

const (
	// TieBreakMostRecent prefers the identifier observed last.
	TieBreakMostRecent TieBreak = "most_recent"
	// TieBreakFirstSeen prefers the identifier observed first.
	TieBreakFirstSeen TieBreak = "first_seen"
)

// ParseTieBreak parses a tie-break config value. Empty means most_recent.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakMostRecent:
		return TieBreakMostRecent, nil
	case TieBreakFirstSeen:
		return TieBreakFirstSeen, nil
	}
	return "", fmt.Errorf("unknown tie-break %q", s)
}

// DwellEntry is the accumulated foreground time of one identifier.
type DwellEntry struct {
	Dwell     time.Duration
	FirstSeen time.Time
	LastSeen  time.Time
}

// DwellTally accumulates foreground dwell time for the current buffer window.
// Sampling and resolution may run concurrently; Take swaps in a fresh map so
// a reader never sees a half-reset tally.
type DwellTally struct {
	mu      sync.Mutex
	entries map[string]*DwellEntry
}

// NewDwellTally creates an empty tally.
func NewDwellTally() *DwellTally {
	return &DwellTally{entries: make(map[string]*DwellEntry)}
}

// Record adds d of dwell time to id, observed at at.
func (t *DwellTally) Record(id string, d time.Duration, at time.Time) {
	if id == "" || d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		e = &DwellEntry{FirstSeen: at}
		t.entries[id] = e
	}
	e.Dwell += d
	if at.After(e.LastSeen) {
		e.LastSeen = at
	}
}

// Len returns the number of tracked identifiers.
func (t *DwellTally) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Take returns the current tally and resets it.
func (t *DwellTally) Take() map[string]DwellEntry {
	t.mu.Lock()
	old := t.entries
	t.entries = make(map[string]*DwellEntry)
	t.mu.Unlock()

	out := make(map[string]DwellEntry, len(old))
	for id, e := range old {
		out[id] = *e
	}
	return out
}

// Reset discards the tally.
func (t *DwellTally) Reset() {
	t.Take()
}

// MostDwelled picks the identifier with the greatest dwell time.
// Returns false for an empty tally.
func MostDwelled(entries map[string]DwellEntry, tb TieBreak) (string, bool) {
	var bestID string
	var best DwellEntry
	found := false

	for id, e := range entries {
		if !found || e.Dwell > best.Dwell || (e.Dwell == best.Dwell && preferOnTie(id, e, bestID, best, tb)) {
			bestID, best, found = id, e, true
		}
	}
	return bestID, found
}

func preferOnTie(id string, e DwellEntry, bestID string, best DwellEntry, tb TieBreak) bool {
	switch tb {
	case TieBreakFirstSeen:
		if !e.FirstSeen.Equal(best.FirstSeen) {
			return e.FirstSeen.Before(best.FirstSeen)
		}
	default:
		if !e.LastSeen.Equal(best.LastSeen) {
			return e.LastSeen.After(best.LastSeen)
		}
	}
	// Map iteration is random; keep the result stable.
	return id < bestID
}
