// Package storetest keeps test suites against store.Backend.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
)

// TestBackend runs the full contract suite. newBackend must return an empty
// backend; it is called once per subtest.
func TestBackend(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Run("Instances", func(t *testing.T) { TestInstances(t, newBackend(t)) })
	t.Run("Commit", func(t *testing.T) { TestCommit(t, newBackend(t)) })
	t.Run("SeqConflict", func(t *testing.T) { TestSeqConflict(t, newBackend(t)) })
	t.Run("Cycles", func(t *testing.T) { TestCycles(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { TestDelete(t, newBackend(t)) })
}

// TestInstances checks create, get and list.
func TestInstances(t *testing.T, b store.Backend) {
	ctx := context.Background()
	props := ir.Object{"start": ir.Int(3)}

	mustCreate(t, b, store.Instance{ID: "b", App: "counter", Props: props})
	mustCreate(t, b, store.Instance{ID: "a", App: "list"})
	mustCreate(t, b, store.Instance{ID: "c", App: "counter"})

	err := b.CreateInstance(ctx, store.Instance{ID: "a", App: "counter"})
	if !errors.Is(err, store.ErrInstanceExists) {
		t.Errorf("duplicate create err = %v, want ErrInstanceExists", err)
	}

	got, err := b.GetInstance(ctx, "b")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.App != "counter" || got.Seq != 0 || !ir.Equal(got.Props, props) {
		t.Errorf("GetInstance = %+v", got)
	}
	if _, err := b.GetInstance(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetInstance(missing) err = %v, want ErrNotFound", err)
	}

	all, err := b.ListInstances(ctx, "")
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if ids := idsOf(all); !cmp.Equal(ids, []string{"a", "b", "c"}) {
		t.Errorf("ListInstances(\"\") ids = %v", ids)
	}
	counters, err := b.ListInstances(ctx, "counter")
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if ids := idsOf(counters); !cmp.Equal(ids, []string{"b", "c"}) {
		t.Errorf("ListInstances(counter) ids = %v", ids)
	}
}

// TestCommit checks that committed deltas accumulate into the snapshot.
func TestCommit(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mustCreate(t, b, store.Instance{ID: "i1", App: "counter"})

	first := ir.Delta{Set: map[ir.HookID]ir.HookState{
		"counter/state#0": {Kind: ir.KindState, Value: ir.Int(1)},
		"counter/state#1": {Kind: ir.KindState, Value: ir.String("x")},
	}}
	second := ir.Delta{
		Set:     map[ir.HookID]ir.HookState{"counter/state#0": {Kind: ir.KindState, Value: ir.Int(2)}},
		Removed: []ir.HookID{"counter/state#1"},
	}
	for i, d := range []ir.Delta{first, second} {
		if err := b.Commit(ctx, "i1", d, entry(int64(i+1))); err != nil {
			t.Fatalf("Commit %d: %v", i+1, err)
		}
	}

	got, err := b.LoadSnapshot(ctx, "i1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	want := ir.Snapshot{}.Merge(first).Merge(second)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	inst, err := b.GetInstance(ctx, "i1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst.Seq != 2 {
		t.Errorf("Seq = %d, want 2", inst.Seq)
	}
	if _, err := b.LoadSnapshot(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadSnapshot(missing) err = %v, want ErrNotFound", err)
	}
}

// TestSeqConflict checks that an out-of-order commit changes nothing.
func TestSeqConflict(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mustCreate(t, b, store.Instance{ID: "i1", App: "counter"})
	if err := b.Commit(ctx, "i1", ir.Delta{}, entry(1)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stale := ir.Delta{Set: map[ir.HookID]ir.HookState{"counter/state#0": {Kind: ir.KindState, Value: ir.Int(9)}}}
	for _, seq := range []int64{1, 3} {
		if err := b.Commit(ctx, "i1", stale, entry(seq)); !errors.Is(err, store.ErrSeqConflict) {
			t.Errorf("Commit seq %d err = %v, want ErrSeqConflict", seq, err)
		}
	}
	snap, err := b.LoadSnapshot(ctx, "i1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("snapshot = %v, want empty", snap)
	}
	if err := b.Commit(ctx, "missing", ir.Delta{}, entry(1)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Commit(missing) err = %v, want ErrNotFound", err)
	}
}

// TestCycles checks the cycle log round trip and ordering.
func TestCycles(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mustCreate(t, b, store.Instance{ID: "i1", App: "counter"})
	for seq := int64(1); seq <= 12; seq++ {
		e := entry(seq)
		e.Request.Events = []ir.Event{ir.Interaction("counter/handler#0", ir.Int(seq))}
		if err := b.Commit(ctx, "i1", ir.Delta{}, e); err != nil {
			t.Fatalf("Commit %d: %v", seq, err)
		}
	}

	cycles, err := b.ReadCycles(ctx, "i1")
	if err != nil {
		t.Fatalf("ReadCycles: %v", err)
	}
	if len(cycles) != 12 {
		t.Fatalf("len(cycles) = %d, want 12", len(cycles))
	}
	for i, c := range cycles {
		seq := int64(i + 1)
		if c.Seq != seq || c.Request.Seq != seq {
			t.Errorf("cycles[%d] seq = %d/%d, want %d", i, c.Seq, c.Request.Seq, seq)
		}
		if len(c.Request.Events) != 1 || !ir.Equal(c.Request.Events[0].Payload, ir.Int(seq)) {
			t.Errorf("cycles[%d] events = %v", i, c.Request.Events)
		}
		if c.StateDigest != "digest" {
			t.Errorf("cycles[%d] digest = %q", i, c.StateDigest)
		}
	}
	if _, err := b.ReadCycles(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadCycles(missing) err = %v, want ErrNotFound", err)
	}
}

// TestDelete checks that deleting drops state and log.
func TestDelete(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mustCreate(t, b, store.Instance{ID: "i1", App: "counter"})
	d := ir.Delta{Set: map[ir.HookID]ir.HookState{"counter/state#0": {Kind: ir.KindState, Value: ir.Int(1)}}}
	if err := b.Commit(ctx, "i1", d, entry(1)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := b.DeleteInstance(ctx, "i1"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	if _, err := b.GetInstance(ctx, "i1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetInstance after delete err = %v, want ErrNotFound", err)
	}
	if err := b.DeleteInstance(ctx, "i1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteInstance err = %v, want ErrNotFound", err)
	}

	// The id is reusable and starts clean.
	mustCreate(t, b, store.Instance{ID: "i1", App: "counter"})
	snap, err := b.LoadSnapshot(ctx, "i1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("snapshot after recreate = %v, want empty", snap)
	}
	cycles, err := b.ReadCycles(ctx, "i1")
	if err != nil {
		t.Fatalf("ReadCycles: %v", err)
	}
	if len(cycles) != 0 {
		t.Errorf("cycles after recreate = %d, want 0", len(cycles))
	}
}

func mustCreate(t *testing.T, b store.Backend, inst store.Instance) {
	t.Helper()
	if err := b.CreateInstance(context.Background(), inst); err != nil {
		t.Fatalf("CreateInstance(%s): %v", inst.ID, err)
	}
}

func entry(seq int64) store.CycleEntry {
	return store.CycleEntry{
		Seq:         seq,
		Request:     ir.Request{Seq: seq},
		Response:    []byte(`{"seq":` + strconv.FormatInt(seq, 10) + `}`),
		StateDigest: "digest",
	}
}

func idsOf(insts []store.Instance) []string {
	ids := make([]string, 0, len(insts))
	for _, inst := range insts {
		ids = append(ids, inst.ID)
	}
	return ids
}
