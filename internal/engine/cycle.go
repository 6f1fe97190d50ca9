package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// Cycle outcome labels for metrics.
const (
	outcomeOK          = "ok"
	outcomeRenderError = "render_error"
	outcomeInterrupted = "interrupted"
)

// Cycle runs one round trip: rebuild hook instances from req.PriorState,
// dispatch req.Events in order, render once more and diff the store.
//
// A *RenderError or an interrupt (*BudgetExceededError, context
// cancellation) fails the whole cycle and nothing is returned. Handler
// failures do not; they are reported in Response.Errors.
//
// Cycle never blocks on I/O. Loads are returned in Response.Requeued for
// the host to run with RunLoader.
func (e *Engine) Cycle(ctx context.Context, req ir.Request) (*Response, error) {
	start := time.Now()
	rc := newRenderContext(ctx, e, req)

	resp, err := rc.run(req)
	outcome := outcomeOK
	switch {
	case err == nil:
	case IsInterrupt(err):
		outcome = outcomeInterrupted
	default:
		outcome = outcomeRenderError
	}
	e.metrics.RecordCycle(e.name, outcome, time.Since(start))

	if err != nil {
		rc.logger.Debug("cycle failed", "error", err, "outcome", outcome)
		return nil, err
	}
	rc.logger.Debug("cycle complete",
		"events", len(req.Events),
		"set", len(resp.Delta.Set),
		"removed", len(resp.Delta.Removed),
		"effects", len(resp.Effects),
		"requeued", len(resp.Requeued),
		"dropped", len(resp.Dropped),
	)
	return resp, nil
}

func (rc *RenderContext) run(req ir.Request) (*Response, error) {
	e := rc.engine
	if len(req.Events) > e.budget.MaxEventsPerCycle {
		return nil, &BudgetExceededError{Limit: LimitEvents, Count: len(req.Events), Max: e.budget.MaxEventsPerCycle}
	}
	for id, st := range req.PriorState {
		if !st.Kind.Valid() {
			return nil, fmt.Errorf("prior state %s: unknown hook kind %q", id, st.Kind)
		}
	}

	if len(req.Events) > 0 {
		rc.discovering = true
		if _, err := rc.renderPass(); err != nil {
			return nil, err
		}
		for i, ev := range req.Events {
			if err := rc.ctx.Err(); err != nil {
				return nil, err
			}
			e.metrics.RecordEvent(e.name, string(ev.Kind))
			drop, err := rc.dispatch(i, ev)
			if err != nil {
				return nil, err
			}
			if drop != "" {
				rc.recordDrop(i, ev, drop)
			}
		}
	}

	rc.discovering = false
	tree, err := rc.renderPass()
	if err != nil {
		return nil, err
	}
	return rc.finish(tree), nil
}

// finish prunes hooks the final render did not produce and assembles the
// response.
func (rc *RenderContext) finish(tree ui.Node) *Response {
	e := rc.engine
	for _, p := range rc.store.Prune() {
		if eff, ok := teardown(p.ID, p.State); ok {
			rc.emit(eff)
		}
		rc.logger.Debug("hook pruned", "hook_id", p.ID, "kind", p.State.Kind)
	}

	resp := &Response{
		Seq:         rc.seq,
		Tree:        tree,
		Delta:       rc.store.Delta(),
		Effects:     rc.emitter.collect(rc.seq),
		Requeued:    rc.pendingRequeues(),
		Dropped:     rc.dropped,
		handlerErrs: rc.handlerErrs,
	}
	if resp.Effects == nil {
		resp.Effects = []ir.Effect{}
	}
	if resp.Requeued == nil {
		resp.Requeued = []ir.Requeue{}
	}
	for _, herr := range rc.handlerErrs {
		resp.Errors = append(resp.Errors, herr.(*HandlerError).Info())
	}

	for _, eff := range resp.Effects {
		e.metrics.RecordEffect(e.name, string(eff.Kind))
	}
	e.metrics.RecordRequeues(e.name, len(resp.Requeued))
	e.metrics.RecordHandlerErrors(e.name, len(resp.Errors))
	return resp
}
