// Package state holds hook state for the duration of one cycle.
//
// A Store starts from the prior snapshot, records writes in a dirty set and
// which ids the current render pass touched, and produces the minimal Delta
// at the end of the cycle. It is not safe for concurrent use; a cycle runs
// on a single goroutine.
package state

import (
	"slices"

	"github.com/roach88/rehook/internal/ir"
)

// Store is the per-cycle hook state table.
type Store struct {
	prior   ir.Snapshot
	current map[ir.HookID]ir.HookState
	dirty   map[ir.HookID]struct{}
	touched map[ir.HookID]struct{}
}

// Pruned is an entry removed because the final render no longer produced it.
type Pruned struct {
	ID    ir.HookID
	State ir.HookState
}

// New creates a store over prior. prior is never mutated.
func New(prior ir.Snapshot) *Store {
	current := make(map[ir.HookID]ir.HookState, len(prior))
	for id, st := range prior {
		current[id] = st
	}
	if prior == nil {
		prior = ir.Snapshot{}
	}
	return &Store{
		prior:   prior,
		current: current,
		dirty:   make(map[ir.HookID]struct{}),
		touched: make(map[ir.HookID]struct{}),
	}
}

// Read returns the current state of id.
func (s *Store) Read(id ir.HookID) (ir.HookState, bool) {
	st, ok := s.current[id]
	return st, ok
}

// Write replaces the state of id and marks it dirty. Dirty entries whose
// canonical encoding equals the prior snapshot are dropped by Delta.
func (s *Store) Write(id ir.HookID, st ir.HookState) {
	s.current[id] = st
	s.dirty[id] = struct{}{}
}

// Touch records that the current render pass produced id.
func (s *Store) Touch(id ir.HookID) {
	s.touched[id] = struct{}{}
}

// Touched reports whether the current pass produced id.
func (s *Store) Touched(id ir.HookID) bool {
	_, ok := s.touched[id]
	return ok
}

// BeginPass clears the touched set before a render pass.
func (s *Store) BeginPass() {
	clear(s.touched)
}

// Prune removes every entry the current pass did not touch, except
// persistent ones, and returns them sorted by id.
func (s *Store) Prune() []Pruned {
	var out []Pruned
	for id, st := range s.current {
		if _, ok := s.touched[id]; ok || st.Persistent {
			continue
		}
		out = append(out, Pruned{ID: id, State: st})
	}
	slices.SortFunc(out, func(a, b Pruned) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for _, p := range out {
		delete(s.current, p.ID)
		delete(s.dirty, p.ID)
	}
	return out
}

// Delta returns the changes relative to the prior snapshot: dirty entries
// that differ canonically, and prior ids that are gone.
func (s *Store) Delta() ir.Delta {
	var d ir.Delta
	for id := range s.dirty {
		st, ok := s.current[id]
		if !ok {
			continue
		}
		if prev, had := s.prior[id]; had && prev.Equal(st) {
			continue
		}
		if d.Set == nil {
			d.Set = make(map[ir.HookID]ir.HookState)
		}
		d.Set[id] = st
	}
	for id := range s.prior {
		if _, ok := s.current[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	slices.Sort(d.Removed)
	return d
}

// Snapshot returns a copy of the current table.
func (s *Store) Snapshot() ir.Snapshot {
	out := make(ir.Snapshot, len(s.current))
	for id, st := range s.current {
		out[id] = st
	}
	return out
}

// Prior returns the snapshot the store was created from.
func (s *Store) Prior() ir.Snapshot {
	return s.prior
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return len(s.current)
}
