package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rehook/internal/ir"
)

// Loader errors returned by RunLoader before the loader runs.
var (
	// ErrUnknownHook means the render did not produce an async hook with
	// the requeued id.
	ErrUnknownHook = errors.New("requeued hook not produced by render")

	// ErrStaleRequest means the hook no longer waits for this request id.
	ErrStaleRequest = errors.New("requeued request is stale")
)

// Loader outcome codes carried in ir.ErrorInfo.
const (
	CodeLoaderFailed = "LOADER_FAILED"
	CodeLoaderPanic  = "LOADER_PANIC"
)

// RunLoader executes the loader of a requeued async hook and returns the
// completion event to feed into the next cycle.
//
// The hook's closure is recovered by rendering against snap (the render's
// tree, delta and effects are discarded). Loader failures and panics are
// captured in a failed completion; interrupts and ctx cancellation are
// returned as errors and never turned into hook state.
func (e *Engine) RunLoader(ctx context.Context, snap ir.Snapshot, props ir.Object, rq ir.Requeue) (ir.Event, error) {
	rc := newRenderContext(ctx, e, ir.Request{Props: props, PriorState: snap})
	if _, err := rc.renderPass(); err != nil {
		return ir.Event{}, fmt.Errorf("render for loader %s: %w", rq.HookID, err)
	}

	a, ok := rc.pass.hooks[rq.HookID].(*Async)
	if !ok {
		return ir.Event{}, fmt.Errorf("%w: %s", ErrUnknownHook, rq.HookID)
	}
	st, _ := rc.store.Read(rq.HookID)
	if st.Load != ir.LoadLoading || ir.RequestID(rq.HookID, st.DepKey) != rq.RequestID {
		return ir.Event{}, fmt.Errorf("%w: %s (%s)", ErrStaleRequest, rq.HookID, rq.RequestID)
	}
	if a.loader == nil {
		return ir.Completion(rq.HookID, rq.RequestID,
			ir.Fail(ir.ErrorInfo{Message: "async hook has no loader", Code: CodeLoaderFailed})), nil
	}

	start := time.Now()
	v, err := callLoader(ctx, a.loader)
	outcome := outcomeOK
	defer func() { e.metrics.RecordLoader(e.name, outcome, time.Since(start)) }()

	if err != nil {
		if IsInterrupt(err) {
			outcome = outcomeInterrupted
			return ir.Event{}, err
		}
		outcome = "error"
		info := ir.ErrorInfoFrom(err)
		if info.Code == "" {
			info.Code = CodeLoaderFailed
		}
		var pe *PanicError
		if errors.As(err, &pe) {
			info.Code = CodeLoaderPanic
		}
		rc.logger.Debug("loader failed", "hook_id", rq.HookID, "request_id", rq.RequestID, "error", err)
		return ir.Completion(rq.HookID, rq.RequestID, ir.Fail(info)), nil
	}

	if v == nil {
		v = ir.Null{}
	}
	if _, cerr := ir.MarshalCanonical(v); cerr != nil {
		outcome = "error"
		return ir.Completion(rq.HookID, rq.RequestID, ir.Fail(ir.ErrorInfo{
			Message: "loader returned a value that cannot be serialized",
			Detail:  cerr.Error(),
			Code:    string(ErrCodeInvalidValue),
		})), nil
	}
	return ir.Completion(rq.HookID, rq.RequestID, ir.Ok(v)), nil
}

func callLoader(ctx context.Context, l Loader) (v ir.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverAsError(r)
		}
	}()
	v, err = l(ctx)
	if err == nil {
		// A loader that ignored cancellation still lost the race.
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
	}
	return v, err
}
