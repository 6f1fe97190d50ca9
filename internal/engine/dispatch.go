package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// Drop records an event that was discarded instead of dispatched.
type Drop struct {
	Index  int          `json:"index"`
	Kind   ir.EventKind `json:"kind"`
	Target ir.HookID    `json:"target,omitempty"`
	Reason string       `json:"reason"`
}

// Drop reasons.
const (
	dropUnknownTarget = "unknown_target"
	dropKindMismatch  = "kind_mismatch"
	dropStaleRequest  = "stale_request"
	dropNotLoading    = "not_loading"
	dropTimerStopped  = "timer_stopped"
	dropNotMounted    = "not_mounted"
	dropStaleForm     = "stale_form"
	dropNoSubscribers = "no_subscribers"
	dropNoHandler     = "no_handler"
	dropInvalidEvent  = "invalid_event"
)

// invoke runs one user callback in the event phase. A returned or panicked
// error is recorded as a *HandlerError and does not stop the cycle; fatal
// programmer errors and interrupts are returned.
func (rc *RenderContext) invoke(index int, ev ir.Event, id ir.HookID, fn func() error) (err error) {
	prevPhase, prevTarget := rc.phase, rc.currentTarget
	rc.phase, rc.currentTarget = phaseEvent, id
	defer func() {
		rc.phase, rc.currentTarget = prevPhase, prevTarget
	}()

	herr := func() (herr error) {
		defer func() {
			if r := recover(); r != nil {
				herr = recoverAsError(r)
			}
		}()
		return fn()
	}()

	if rc.fatal != nil {
		return rc.fatal
	}
	if herr == nil {
		return nil
	}
	if IsInterrupt(herr) {
		return herr
	}
	rc.handlerErrs = append(rc.handlerErrs, &HandlerError{EventIndex: index, Kind: ev.Kind, HookID: id, Err: herr})
	rc.logger.Debug("handler failed",
		"event", index,
		"kind", ev.Kind,
		"hook_id", id,
		"error", herr,
	)
	return nil
}

// dispatch delivers one event. It returns a non-empty drop reason when the
// event was discarded; err is fatal to the cycle.
func (rc *RenderContext) dispatch(index int, ev ir.Event) (drop string, err error) {
	if !ev.Kind.Valid() {
		return dropInvalidEvent, nil
	}
	if ev.Kind == ir.EventChannelMessage {
		return rc.broadcast(index, ev)
	}

	h, ok := rc.pass.hooks[ev.Target]
	if !ok && rc.version != rc.passVersion {
		// Earlier events changed state; a fresh discovery render may
		// produce the target (e.g. a handler that only exists now).
		if _, err := rc.renderPass(); err != nil {
			return "", err
		}
		h, ok = rc.pass.hooks[ev.Target]
	}
	if !ok {
		return dropUnknownTarget, nil
	}

	rc.phase, rc.currentTarget = phaseEvent, ev.Target
	defer func() { rc.phase, rc.currentTarget = phaseIdle, "" }()

	switch h := h.(type) {
	case *handler:
		if ev.Kind != ir.EventUserInteraction {
			return dropKindMismatch, nil
		}
		if h.fn == nil {
			return dropNoHandler, nil
		}
		return "", rc.invoke(index, ev, h.id, func() error { return h.fn(ev) })
	case *Async:
		if ev.Kind != ir.EventAsyncCompletion {
			return dropKindMismatch, nil
		}
		return h.complete(index, ev)
	case *Interval:
		if ev.Kind != ir.EventTimerFire {
			return dropKindMismatch, nil
		}
		return h.fire(index, ev)
	case *WebView:
		switch ev.Kind {
		case ir.EventSurfaceMessage:
			return h.message(index, ev)
		case ir.EventSurfaceVisibility:
			return h.visibility(index, ev)
		}
		return dropKindMismatch, nil
	case *Form:
		if ev.Kind != ir.EventFormSubmission {
			return dropKindMismatch, nil
		}
		return h.submit(index, ev)
	case *State, *Channel:
		return dropKindMismatch, nil
	}
	return dropUnknownTarget, nil
}

// broadcast delivers a channel message to every subscribed hook on the
// channel, in render order. A failing subscriber does not prevent the
// others from running.
func (rc *RenderContext) broadcast(index int, ev ir.Event) (string, error) {
	var subs []*Channel
	for _, id := range rc.pass.order {
		c, ok := rc.pass.hooks[id].(*Channel)
		if ok && c.name == ev.Channel && c.Subscribed() {
			subs = append(subs, c)
		}
	}
	if len(subs) == 0 {
		return dropNoSubscribers, nil
	}
	for _, c := range subs {
		if err := c.deliver(index, ev); err != nil {
			return "", err
		}
	}
	return "", nil
}

// recordDrop logs and counts a discarded event.
func (rc *RenderContext) recordDrop(index int, ev ir.Event, reason string) {
	target := ev.Target
	if ev.Kind == ir.EventChannelMessage {
		target = ir.HookID(ev.Channel)
	}
	rc.dropped = append(rc.dropped, Drop{Index: index, Kind: ev.Kind, Target: target, Reason: reason})
	rc.logger.Debug("event dropped",
		"event", index,
		"kind", ev.Kind,
		"target", target,
		"reason", reason,
	)
	rc.engine.metrics.RecordDrop(rc.engine.name, reason)
}
