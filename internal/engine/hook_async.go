package engine

import (
	"context"

	"github.com/roach88/rehook/internal/ir"
)

// Loader fetches data for an async hook. It runs outside the cycle, on the
// host, and must honour ctx cancellation.
type Loader func(ctx context.Context) (ir.Value, error)

// AsyncOptions configures UseAsync.
type AsyncOptions struct {
	// DependsOn is the value the load is keyed on. A change starts a new
	// load; nil means the constant null, loading once.
	DependsOn ir.Value

	// Disabled keeps the hook in the disabled state while true.
	Disabled bool

	// Finally runs in the event phase after a matching completion settles
	// the hook.
	Finally func(ir.Result) error
}

// Async is an asynchronous data hook:
//
//	initial -> loading -> loaded | error
//	any     -> disabled (while Disabled holds)
//
// Every render compares the canonical dependency key with the stored one
// and requests a new load when it differs. Completions carry the request
// id; one that does not match the id recomputed from stored state is stale.
type Async struct {
	rc     *RenderContext
	id     ir.HookID
	loader Loader
	opts   AsyncOptions
}

func (a *Async) hookID() ir.HookID { return a.id }

// UseAsync declares an async hook.
func UseAsync(rc *RenderContext, loader Loader, opts AsyncOptions, hopts ...HookOption) *Async {
	cfg := buildConfig(hopts)
	id, fresh, err := rc.registerHook(ir.KindAsync, cfg)
	a := &Async{rc: rc, id: id, loader: loader, opts: opts}
	if err != nil {
		return a
	}
	rc.bind(a)

	depKey, err := ir.DependencyKey(opts.DependsOn)
	if err != nil {
		re := newRenderError(ErrCodeInvalidValue, id, rc.Path(), "dependency value cannot be serialized")
		re.Cause = err
		rc.fail(re)
		return a
	}

	st, ok := rc.store.Read(id)
	if !ok || fresh {
		st = ir.HookState{Kind: ir.KindAsync, Value: ir.Null{}, Load: ir.LoadInitial, Persistent: cfg.persistent}
		ok = false
	}

	if opts.Disabled {
		if !ok || st.Load != ir.LoadDisabled {
			st.Load = ir.LoadDisabled
			st.RequestID = ""
			rc.write(id, st)
		}
		return a
	}
	if st.Load == ir.LoadDisabled {
		st.Load = ir.LoadInitial
	}

	if st.Load == ir.LoadInitial || st.DepKey != depKey {
		st.Load = ir.LoadLoading
		st.DepKey = depKey
		st.RequestID = ir.RequestID(id, depKey)
		st.Error = nil
		rc.write(id, st)
		rc.requeue(ir.Requeue{HookID: id, RequestID: st.RequestID, DepKey: depKey})
		rc.logger.Debug("async load requested",
			"hook_id", id,
			"request_id", st.RequestID,
			"dep_key", depKey,
		)
	}
	return a
}

// ID returns the hook id.
func (a *Async) ID() ir.HookID { return a.id }

func (a *Async) state() ir.HookState {
	st, _ := a.rc.store.Read(a.id)
	return st
}

// Load returns the lifecycle state.
func (a *Async) Load() ir.LoadState {
	return a.state().Load
}

// Loading reports whether a load is outstanding.
func (a *Async) Loading() bool { return a.Load() == ir.LoadLoading }

// Data returns the most recent loaded value, which is kept while a newer
// load is in flight. Null before the first successful load.
func (a *Async) Data() ir.Value {
	st := a.state()
	if st.Value == nil {
		return ir.Null{}
	}
	return st.Value
}

// Result returns the settled outcome; ok is false while initial, loading
// or disabled.
func (a *Async) Result() (r ir.Result, ok bool) {
	st := a.state()
	switch st.Load {
	case ir.LoadLoaded:
		return ir.Ok(st.Value), true
	case ir.LoadError:
		if st.Error != nil {
			return ir.Fail(*st.Error), true
		}
		return ir.Fail(ir.ErrorInfo{Message: "unknown error"}), true
	}
	return ir.Result{}, false
}

// complete applies an async-completion event.
func (a *Async) complete(index int, ev ir.Event) (string, error) {
	st, ok := a.rc.store.Read(a.id)
	if !ok {
		return dropUnknownTarget, nil
	}
	if st.Load != ir.LoadLoading {
		return dropNotLoading, nil
	}
	if ev.RequestID != ir.RequestID(a.id, st.DepKey) {
		return dropStaleRequest, nil
	}

	res := ev.Result()
	v, info := res.Unpack()
	if info != nil {
		st.Load = ir.LoadError
		st.Error = info
	} else {
		st.Load = ir.LoadLoaded
		st.Value = v
		st.Error = nil
	}
	if a.rc.validValue(a.id, st.Value) != nil {
		return "", a.rc.fatal
	}
	a.rc.write(a.id, st)

	if a.opts.Finally != nil {
		return "", a.rc.invoke(index, ev, a.id, func() error { return a.opts.Finally(res) })
	}
	return "", nil
}
