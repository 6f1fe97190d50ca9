package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/ir"
)

func counter(n int64) ir.HookState {
	return ir.HookState{Kind: ir.KindState, Value: ir.Int(n)}
}

func TestReadWrite(t *testing.T) {
	s := New(nil)
	_, ok := s.Read("App/state#0")
	assert.False(t, ok)

	s.Write("App/state#0", counter(0))
	st, ok := s.Read("App/state#0")
	require.True(t, ok)
	assert.Equal(t, ir.Int(0), st.Value)
}

func TestDeltaOnlyChangedEntries(t *testing.T) {
	prior := ir.Snapshot{
		"App/state#0": counter(0),
		"App/state#1": counter(7),
	}
	s := New(prior)

	s.Write("App/state#0", counter(1))
	s.Write("App/state#1", counter(7)) // written back unchanged

	d := s.Delta()
	assert.Equal(t, map[ir.HookID]ir.HookState{"App/state#0": counter(1)}, d.Set)
	assert.Empty(t, d.Removed)
}

func TestDeltaIgnoresKeyOrder(t *testing.T) {
	prior := ir.Snapshot{
		"App/state#0": {Kind: ir.KindState, Value: ir.Object{"a": ir.Int(1), "b": ir.Int(2)}},
	}
	s := New(prior)
	s.Write("App/state#0", ir.HookState{Kind: ir.KindState, Value: ir.Object{"b": ir.Int(2), "a": ir.Int(1)}})
	assert.True(t, s.Delta().Empty())
}

func TestPruneUntouched(t *testing.T) {
	prior := ir.Snapshot{
		"App/state#0":            counter(0),
		"App/Timer@0/interval#0": {Kind: ir.KindInterval, Value: ir.Object{"status": ir.String("running")}},
		"App/keep:forever":       {Kind: ir.KindState, Value: ir.Int(1), Persistent: true},
	}
	s := New(prior)
	s.BeginPass()
	s.Touch("App/state#0")

	pruned := s.Prune()
	require.Len(t, pruned, 1)
	assert.Equal(t, ir.HookID("App/Timer@0/interval#0"), pruned[0].ID)
	assert.Equal(t, ir.KindInterval, pruned[0].State.Kind)

	d := s.Delta()
	assert.Equal(t, []ir.HookID{"App/Timer@0/interval#0"}, d.Removed)
	_, ok := s.Read("App/keep:forever")
	assert.True(t, ok, "persistent entries survive pruning")
}

func TestPruneDropsNewUntouchedWrites(t *testing.T) {
	s := New(nil)
	s.BeginPass()
	s.Write("App/state#0", counter(0))
	s.Touch("App/state#0")
	s.Write("App/ghost#0", counter(1))

	s.Prune()
	d := s.Delta()
	assert.Equal(t, []ir.HookID{"App/state#0"}, d.SetIDs())
	assert.Empty(t, d.Removed, "never-persisted ids are not reported as removed")
}

func TestBeginPassResetsTouched(t *testing.T) {
	s := New(nil)
	s.Touch("a")
	assert.True(t, s.Touched("a"))
	s.BeginPass()
	assert.False(t, s.Touched("a"))
}

func TestRoundTripThroughMerge(t *testing.T) {
	prior := ir.Snapshot{
		"App/state#0": counter(0),
		"App/state#1": counter(1),
		"App/state#2": counter(2),
	}
	s := New(prior)
	s.BeginPass()
	s.Touch("App/state#0")
	s.Touch("App/state#1")
	s.Write("App/state#1", counter(10))
	s.Write("App/state#3", counter(3))
	s.Touch("App/state#3")
	s.Prune()

	next := prior.Merge(s.Delta())
	if diff := cmp.Diff(ir.Snapshot(s.Snapshot()), next); diff != "" {
		t.Fatalf("merged snapshot differs from store view (-store +merged):\n%s", diff)
	}
	assert.Len(t, prior, 3, "prior must not be mutated")
}
