package engine

// # Replay
//
// A cycle is a pure function of (root component, request). Replay feeds a
// recorded request back through Cycle and requires the same tree, delta,
// effects and requeues, byte for byte in canonical form. Effect ids are
// derived from the cycle seq and position, so a host that re-applies a
// replayed response drops every effect it already executed.
//
// A log of consecutive cycles is also checked for continuity: the prior
// state of each request must equal the previous request's prior state
// merged with the previous delta.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/rehook/internal/ir"
)

// CycleRecord is one logged cycle.
type CycleRecord struct {
	Request  ir.Request `json:"request"`
	Response *Response  `json:"response"`
}

// ReplayMismatchError reports the first divergence found by Replay.
type ReplayMismatchError struct {
	Seq   int64
	Field string
	Diff  string
}

// Error implements the error interface.
func (e *ReplayMismatchError) Error() string {
	return fmt.Sprintf("replay diverged at seq %d in %s:\n%s", e.Seq, e.Field, e.Diff)
}

// ErrorCode implements the coded-error contract used by ir.ErrorInfoFrom.
func (e *ReplayMismatchError) ErrorCode() string { return "REPLAY_MISMATCH" }

// ReplayResult summarizes a successful replay.
type ReplayResult struct {
	Cycles      int
	FinalState  ir.Snapshot
	StateDigest string
}

// Replay re-runs records in order and verifies every response. It stops at
// the first mismatch, returned as a *ReplayMismatchError.
func (e *Engine) Replay(ctx context.Context, records []CycleRecord) (*ReplayResult, error) {
	var expected ir.Snapshot
	for i, rec := range records {
		seq := rec.Request.Seq
		if i > 0 {
			if d := SnapshotDiff(expected, rec.Request.PriorState); d != "" {
				return nil, &ReplayMismatchError{Seq: seq, Field: "prior_state", Diff: d}
			}
		}

		got, err := e.Cycle(ctx, rec.Request)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", seq, err)
		}
		if rec.Response != nil {
			if err := compareResponses(seq, rec.Response, got); err != nil {
				return nil, err
			}
		}
		expected = rec.Request.PriorState.Merge(got.Delta)
	}

	res := &ReplayResult{Cycles: len(records), FinalState: expected}
	if expected != nil {
		digest, err := ir.StateDigest(expected)
		if err != nil {
			return nil, err
		}
		res.StateDigest = digest
	}
	return res, nil
}

func compareResponses(seq int64, want, got *Response) error {
	fields := []struct {
		name      string
		want, got any
	}{
		{"tree", want.Tree, got.Tree},
		{"delta", want.Delta, got.Delta},
		{"effects", want.Effects, got.Effects},
		{"requeued", want.Requeued, got.Requeued},
	}
	for _, f := range fields {
		d, err := jsonDiff(f.want, f.got)
		if err != nil {
			return fmt.Errorf("replay seq %d: %s: %w", seq, f.name, err)
		}
		if d != "" {
			return &ReplayMismatchError{Seq: seq, Field: f.name, Diff: d}
		}
	}
	return nil
}

// jsonDiff compares two values through their JSON forms, which treats a nil
// slice and an empty one alike.
func jsonDiff(want, got any) (string, error) {
	a, err := normalize(want)
	if err != nil {
		return "", err
	}
	b, err := normalize(got)
	if err != nil {
		return "", err
	}
	return cmp.Diff(a, b), nil
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	switch t := out.(type) {
	case nil:
		return []any{}, nil
	case map[string]any:
		if len(t) == 0 {
			return map[string]any{}, nil
		}
	}
	return out, nil
}

// SnapshotDiff returns a readable diff of two snapshots, or "" when they
// are equal.
func SnapshotDiff(want, got ir.Snapshot) string {
	if want.Equal(got) {
		return ""
	}
	d, err := jsonDiff(want, got)
	if err != nil {
		return err.Error()
	}
	if d == "" {
		return "snapshots differ canonically"
	}
	return d
}
