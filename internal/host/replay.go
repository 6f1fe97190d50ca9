package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/store"
)

// Records decodes a stored cycle log.
func Records(entries []store.CycleEntry) ([]engine.CycleRecord, error) {
	out := make([]engine.CycleRecord, 0, len(entries))
	for _, ent := range entries {
		var resp engine.Response
		if err := json.Unmarshal(ent.Response, &resp); err != nil {
			return nil, fmt.Errorf("cycle %d: decode response: %w", ent.Seq, err)
		}
		out = append(out, engine.CycleRecord{Request: ent.Request, Response: &resp})
	}
	return out, nil
}

// Replay re-runs the stored cycle log of an instance against its app and
// checks the final state against the committed snapshot.
func (r *Runner) Replay(ctx context.Context, id string) (*engine.ReplayResult, error) {
	inst, err := r.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	app, ok := r.apps[inst.App]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w: %q", id, ErrUnknownApp, inst.App)
	}
	entries, err := r.store.ReadCycles(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := Records(entries)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}
	res, err := app.Replay(ctx, recs)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}
	snap, err := r.store.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := engine.SnapshotDiff(snap, res.FinalState); d != "" {
		return nil, fmt.Errorf("instance %s: %w", id, &engine.ReplayMismatchError{
			Seq:   inst.Seq,
			Field: "final_state",
			Diff:  d,
		})
	}
	return res, nil
}
