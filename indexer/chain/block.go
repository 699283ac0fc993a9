// Package chain holds the small, shared notion of chain progress used
// throughout the compute core: a Block coordinate and the process-wide
// latest-block snapshot evaluators consult when a dependency's validity is
// otherwise unbounded.
package chain

import (
	"sync/atomic"
	"time"
)

// Block identifies a single point in chain history. Height and TimeUnixMs
// are always consistent with each other for any block the indexer has
// ingested.
type Block struct {
	Height     uint64
	TimeUnixMs uint64
}

// Time returns the block's timestamp as a time.Time in UTC.
func (b Block) Time() time.Time {
	return time.UnixMilli(int64(b.TimeUnixMs)).UTC()
}

// Before reports whether b occurred strictly before other.
func (b Block) Before(other Block) bool {
	return b.Height < other.Height
}

// State is the process-wide snapshot of chain identity and progress.
// Readers take a consistent copy via Snapshot; the core never mutates it
// mid-evaluation.
type State struct {
	ChainID     string
	LatestBlock Block
}

// Tracker holds the current State behind an atomic pointer so concurrent
// evaluations can read it without blocking the refresher.
type Tracker struct {
	current atomic.Pointer[State]
}

// NewTracker constructs a Tracker seeded with the given state.
func NewTracker(initial State) *Tracker {
	t := &Tracker{}
	t.Set(initial)
	return t
}

// Set replaces the current snapshot. Called by the ~1s refresh loop started
// in services/query-gateway's main, or directly by tests.
func (t *Tracker) Set(s State) {
	cp := s
	t.current.Store(&cp)
}

// Snapshot returns the current State. Safe for concurrent use.
func (t *Tracker) Snapshot() State {
	if p := t.current.Load(); p != nil {
		return *p
	}
	return State{}
}

// LatestBlock is a convenience accessor equivalent to Snapshot().LatestBlock.
func (t *Tracker) LatestBlock() Block {
	return t.Snapshot().LatestBlock
}

// RefreshLoop polls fetch on the given cadence (spec §5: "~1s") until done
// is closed, storing whatever it returns. Fetch errors are swallowed by the
// caller-supplied onError hook so a transient database hiccup never panics
// the refresher; pass nil to ignore errors.
func (t *Tracker) RefreshLoop(done <-chan struct{}, cadence time.Duration, fetch func() (State, error), onError func(error)) {
	if cadence <= 0 {
		cadence = time.Second
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s, err := fetch()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			t.Set(s)
		}
	}
}
