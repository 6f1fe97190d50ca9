package engine

import (
	"time"

	"github.com/roach88/rehook/internal/ir"
)

// Interval is a repeating timer hook: stopped | running.
//
// The engine never sleeps. Start and Stop emit set-timer and clear-timer
// effects; the host arms a real ticker and feeds timer-fire events back.
type Interval struct {
	rc       *RenderContext
	id       ir.HookID
	fn       func() error
	duration time.Duration
}

func (iv *Interval) hookID() ir.HookID { return iv.id }

// UseInterval declares a timer that calls fn every d while running.
func UseInterval(rc *RenderContext, fn func() error, d time.Duration, opts ...HookOption) *Interval {
	cfg := buildConfig(opts)
	id, fresh, err := rc.registerHook(ir.KindInterval, cfg)
	iv := &Interval{rc: rc, id: id, fn: fn, duration: d}
	if err != nil {
		return iv
	}
	rc.bind(iv)

	if d.Milliseconds() <= 0 {
		rc.fail(newRenderError(ErrCodeInvalidValue, id, rc.Path(), "interval duration %s is below one millisecond", d))
		return iv
	}
	if _, ok := rc.store.Read(id); !ok || fresh {
		rc.write(id, ir.HookState{
			Kind:       ir.KindInterval,
			Value:      ir.Object{"status": ir.String(statusStopped), "duration_ms": ir.Int(d.Milliseconds())},
			Persistent: cfg.persistent,
		})
	}
	return iv
}

// ID returns the hook id.
func (iv *Interval) ID() ir.HookID { return iv.id }

// Running reports whether the timer is armed.
func (iv *Interval) Running() bool {
	st, _ := iv.rc.store.Read(iv.id)
	return statusOf(st) == statusRunning
}

// Start arms the timer. Legal from a render body (auto-start) and from
// event handlers. A set-timer effect is emitted only when the timer was
// stopped or its duration changed.
func (iv *Interval) Start() error {
	if err := iv.rc.requireActive(iv.id, "Interval.Start"); err != nil {
		return err
	}
	ms := iv.duration.Milliseconds()
	st, _ := iv.rc.store.Read(iv.id)
	if statusOf(st) == statusRunning && fieldInt(st, "duration_ms") == ms {
		return nil
	}
	st.Kind = ir.KindInterval
	st.Value = ir.Object{"status": ir.String(statusRunning), "duration_ms": ir.Int(ms)}
	iv.rc.write(iv.id, st)
	iv.rc.emit(ir.SetTimer(iv.id, ms))
	return nil
}

// Stop disarms the timer, emitting clear-timer if it was running.
func (iv *Interval) Stop() error {
	if err := iv.rc.requireActive(iv.id, "Interval.Stop"); err != nil {
		return err
	}
	st, _ := iv.rc.store.Read(iv.id)
	if statusOf(st) != statusRunning {
		return nil
	}
	st.Value = ir.Object{"status": ir.String(statusStopped), "duration_ms": ir.Int(fieldInt(st, "duration_ms"))}
	iv.rc.write(iv.id, st)
	iv.rc.emit(ir.ClearTimer(iv.id))
	return nil
}

// fire applies a timer-fire event.
func (iv *Interval) fire(index int, ev ir.Event) (string, error) {
	if !iv.Running() {
		return dropTimerStopped, nil
	}
	if iv.fn == nil {
		return "", nil
	}
	return "", iv.rc.invoke(index, ev, iv.id, iv.fn)
}
