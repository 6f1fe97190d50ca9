package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

func replayCounter(rc *RenderContext, _ ir.Object) ui.Node {
	n := UseState(rc, ir.Int(0))
	inc := rc.Handler(func(ir.Event) error {
		return n.Update(func(v ir.Value) ir.Value {
			i, _ := ir.AsInt(v)
			return ir.Int(i + 1)
		})
	})
	return ui.VStack(ui.Text(strconv.FormatInt(n.Int(), 10)), ui.Button("+", inc))
}

// record runs count cycles, pressing the button on every cycle after the
// first, and returns the log.
func record(t *testing.T, e *Engine, count int) []CycleRecord {
	t.Helper()
	var (
		recs []CycleRecord
		snap = ir.Snapshot{}
	)
	for i := 0; i < count; i++ {
		req := ir.Request{Seq: int64(i + 1), PriorState: snap}
		if i > 0 {
			req.Events = []ir.Event{ir.Interaction("app/handler#0", nil)}
		}
		resp := cycle(t, e, req.Seq, req.PriorState, req.Events...)
		recs = append(recs, CycleRecord{Request: req, Response: resp})
		snap = snap.Merge(resp.Delta)
	}
	return recs
}

func TestReplay_IdenticalResults(t *testing.T) {
	e := newTestEngine(replayCounter)
	recs := record(t, e, 4)

	res, err := e.Replay(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Cycles)
	assert.Equal(t, ir.Int(3), res.FinalState["app/state#0"].Value)
	assert.NotEmpty(t, res.StateDigest)
}

func TestReplay_SurvivesJSONRoundTrip(t *testing.T) {
	e := newTestEngine(replayCounter)
	recs := record(t, e, 3)

	data, err := json.Marshal(recs)
	require.NoError(t, err)
	var decoded []CycleRecord
	require.NoError(t, json.Unmarshal(data, &decoded))

	_, err = e.Replay(context.Background(), decoded)
	require.NoError(t, err)
}

func TestReplay_DetectsDivergentResponse(t *testing.T) {
	e := newTestEngine(replayCounter)
	recs := record(t, e, 3)
	recs[2].Response.Tree = ui.Text("tampered")

	_, err := e.Replay(context.Background(), recs)
	var mm *ReplayMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, int64(3), mm.Seq)
	assert.Equal(t, "tree", mm.Field)
	assert.NotEmpty(t, mm.Diff)
}

func TestReplay_DetectsBrokenStateChain(t *testing.T) {
	e := newTestEngine(replayCounter)
	recs := record(t, e, 3)
	recs[1].Request.PriorState = ir.Snapshot{}

	_, err := e.Replay(context.Background(), recs)
	var mm *ReplayMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "prior_state", mm.Field)
}

func TestReplay_DifferentCodeDiverges(t *testing.T) {
	recs := record(t, newTestEngine(replayCounter), 2)
	other := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		UseState(rc, ir.Int(100))
		rc.Handler(func(ir.Event) error { return nil })
		return ui.Text("100")
	})

	_, err := other.Replay(context.Background(), recs)
	var mm *ReplayMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, int64(1), mm.Seq)
}
