package ir

import (
	"fmt"
	"slices"
)

// Snapshot maps every live hook id to its state at the start of a cycle.
// Treat it as immutable: Merge returns a new map.
type Snapshot map[HookID]HookState

// Delta is the minimal change set produced by one cycle.
// Set holds entries whose canonical encoding changed; Removed holds ids
// pruned this cycle. Both are sorted when produced by the state store.
type Delta struct {
	Set     map[HookID]HookState `json:"set,omitempty"`
	Removed []HookID             `json:"removed,omitempty"`
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Set) == 0 && len(d.Removed) == 0
}

// SetIDs returns the ids in Set, sorted.
func (d Delta) SetIDs() []HookID {
	ids := make([]HookID, 0, len(d.Set))
	for id := range d.Set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Merge applies d to s and returns the next snapshot. Removals are applied
// after sets, so an id both written and pruned in one cycle ends up absent.
func (s Snapshot) Merge(d Delta) Snapshot {
	out := make(Snapshot, len(s)+len(d.Set))
	for id, st := range s {
		out[id] = st
	}
	for id, st := range d.Set {
		out[id] = st
	}
	for _, id := range d.Removed {
		delete(out, id)
	}
	return out
}

// IDs returns the snapshot's ids, sorted.
func (s Snapshot) IDs() []HookID {
	ids := make([]HookID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a shallow copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, st := range s {
		out[id] = st
	}
	return out
}

// Equal compares two snapshots entry by entry using canonical encodings.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for id, st := range s {
		o, ok := other[id]
		if !ok || !st.Equal(o) {
			return false
		}
	}
	return true
}

func (s Snapshot) toObject() (Object, error) {
	obj := make(Object, len(s))
	for id, st := range s {
		if IsNoOp(st.Value) {
			return nil, fmt.Errorf("hook %s: %w", id, ErrNoOpValue)
		}
		obj[string(id)] = st.toObject()
	}
	return obj, nil
}
