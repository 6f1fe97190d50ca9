package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/state"
)

type phase int

const (
	phaseIdle phase = iota
	phaseRender
	phaseEvent
)

func (p phase) String() string {
	switch p {
	case phaseRender:
		return "render"
	case phaseEvent:
		return "event"
	}
	return "idle"
}

// RenderContext carries everything one cycle needs. It is created per cycle,
// threaded explicitly through every component and hook call, and dropped
// when the cycle returns. Nothing in it outlives the cycle, so independent
// cycles never share mutable state.
//
// A RenderContext is not safe for concurrent use.
type RenderContext struct {
	ctx     context.Context
	engine  *Engine
	logger  *slog.Logger
	seq     int64
	props   ir.Object
	store   *state.Store
	emitter *emitter

	phase         phase
	discovering   bool
	pass          *pass
	fatal         error
	currentTarget ir.HookID

	requeues     map[ir.HookID]ir.Requeue
	requeueOrder []ir.HookID
	handlerErrs  []error
	dropped      []Drop

	// version counts hook writes; a pass records the version it started at
	// so the dispatcher can tell whether a rediscovery render could help.
	version     int
	passVersion int
	hooks       *counter
}

func newRenderContext(ctx context.Context, e *Engine, req ir.Request) *RenderContext {
	props := req.Props
	if props == nil {
		props = ir.Object{}
	}
	return &RenderContext{
		ctx:      ctx,
		engine:   e,
		logger:   e.logger.With("app", e.name, "seq", req.Seq),
		seq:      req.Seq,
		props:    props,
		store:    state.New(req.PriorState),
		emitter:  &emitter{},
		requeues: make(map[ir.HookID]ir.Requeue),
		hooks:    newCounter(LimitHooks, e.budget.MaxHooksPerRender),
	}
}

// Context returns the cycle's context.
func (rc *RenderContext) Context() context.Context { return rc.ctx }

// Props returns the root props of the cycle.
func (rc *RenderContext) Props() ir.Object { return rc.props }

// Seq returns the logical sequence number of the cycle.
func (rc *RenderContext) Seq() int64 { return rc.seq }

// Path returns the path of the component currently rendering, or "" outside
// a render pass.
func (rc *RenderContext) Path() string {
	if f := rc.current(); f != nil {
		return f.path
	}
	return ""
}

// Logger returns the cycle logger.
func (rc *RenderContext) Logger() *slog.Logger { return rc.logger }

// ShowToast emits a transient notification. Only event handlers may show
// toasts; a render would repeat it on every cycle.
func (rc *RenderContext) ShowToast(text, appearance string) error {
	if err := rc.requireEvent(rc.currentTarget, "ShowToast"); err != nil {
		return err
	}
	rc.emit(ir.ShowToast(rc.currentTarget, text, appearance))
	return nil
}

// fail records the first fatal error of the cycle and returns err.
func (rc *RenderContext) fail(err error) error {
	if rc.fatal == nil {
		rc.fatal = err
	}
	return err
}

// requireActive allows render and event phases.
func (rc *RenderContext) requireActive(id ir.HookID, op string) error {
	if rc.phase == phaseIdle {
		return rc.fail(newRenderError(ErrCodeNotInRenderContext, id, "", "%s called outside a render or event", op))
	}
	return nil
}

// requireEvent allows the event phase only.
func (rc *RenderContext) requireEvent(id ir.HookID, op string) error {
	switch rc.phase {
	case phaseEvent:
		return nil
	case phaseRender:
		return rc.fail(newRenderError(ErrCodeIllegalStateMutation, id, rc.Path(), "%s called from a render body", op))
	}
	return rc.fail(newRenderError(ErrCodeNotInRenderContext, id, "", "%s called outside an event handler", op))
}

// write stores a hook's new state.
func (rc *RenderContext) write(id ir.HookID, st ir.HookState) {
	rc.store.Write(id, st)
	rc.version++
}

// emit queues an effect. Render bodies run again in the final pass, so
// uncoalesced effects from a discovery render would be duplicated; they are
// dropped there.
func (rc *RenderContext) emit(e ir.Effect) {
	if rc.discovering && rc.phase == phaseRender && e.Kind.Family() == "" {
		return
	}
	rc.emitter.emit(e)
}

// requeue records a load request; a later request for the same hook
// replaces the earlier one in place.
func (rc *RenderContext) requeue(rq ir.Requeue) {
	if _, ok := rc.requeues[rq.HookID]; !ok {
		rc.requeueOrder = append(rc.requeueOrder, rq.HookID)
	}
	rc.requeues[rq.HookID] = rq
}

// validValue rejects values that cannot be persisted.
func (rc *RenderContext) validValue(id ir.HookID, v ir.Value) error {
	if _, err := ir.MarshalCanonical(v); err != nil {
		re := newRenderError(ErrCodeInvalidValue, id, rc.Path(), "value cannot be serialized")
		re.Cause = err
		return rc.fail(re)
	}
	return nil
}

// pendingRequeues returns requeues whose hook is still loading with the same
// request id, in first-request order.
func (rc *RenderContext) pendingRequeues() []ir.Requeue {
	var out []ir.Requeue
	for _, id := range rc.requeueOrder {
		rq := rc.requeues[id]
		st, ok := rc.store.Read(id)
		if !ok || st.Load != ir.LoadLoading || st.RequestID != rq.RequestID {
			continue
		}
		out = append(out, rq)
	}
	return out
}
