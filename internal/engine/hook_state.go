package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// State is a plain value hook.
type State struct {
	rc *RenderContext
	id ir.HookID
}

func (s *State) hookID() ir.HookID { return s.id }

// UseState declares a state hook initialized to init on first render.
func UseState(rc *RenderContext, init ir.Value, opts ...HookOption) *State {
	return UseStateFunc(rc, func() (ir.Value, error) { return init, nil }, opts...)
}

// UseStateFunc declares a state hook whose initial value is computed lazily,
// only when no stored state exists. An initializer error fails the render.
func UseStateFunc(rc *RenderContext, init func() (ir.Value, error), opts ...HookOption) *State {
	cfg := buildConfig(opts)
	id, fresh, err := rc.registerHook(ir.KindState, cfg)
	s := &State{rc: rc, id: id}
	if err != nil {
		return s
	}
	rc.bind(s)

	if _, ok := rc.store.Read(id); ok && !fresh {
		return s
	}
	v, err := init()
	if err != nil {
		re := newRenderError(ErrCodeInitializerFailed, id, rc.Path(), "state initializer failed")
		re.Cause = err
		rc.fail(re)
		return s
	}
	if v == nil {
		v = ir.Null{}
	}
	if rc.validValue(id, v) != nil {
		return s
	}
	rc.write(id, ir.HookState{Kind: ir.KindState, Value: v, Persistent: cfg.persistent})
	return s
}

// ID returns the hook id.
func (s *State) ID() ir.HookID { return s.id }

// Get returns the current value. It reflects writes made earlier in the
// same cycle.
func (s *State) Get() ir.Value {
	st, ok := s.rc.store.Read(s.id)
	if !ok || st.Value == nil {
		return ir.Null{}
	}
	return st.Value
}

// Int returns the value as an integer, or 0.
func (s *State) Int() int64 {
	n, _ := ir.AsInt(s.Get())
	return n
}

// Set replaces the value. Only event handlers may call Set; from a render
// body it fails the cycle with ErrIllegalStateMutation. Setting NoOp leaves
// the state untouched.
func (s *State) Set(v ir.Value) error {
	if err := s.rc.requireEvent(s.id, "State.Set"); err != nil {
		return err
	}
	return s.set(v)
}

// Update applies fn to the current value. Returning ir.NoOp leaves the
// state unchanged and not dirty.
func (s *State) Update(fn func(ir.Value) ir.Value) error {
	if err := s.rc.requireEvent(s.id, "State.Update"); err != nil {
		return err
	}
	return s.set(fn(s.Get()))
}

func (s *State) set(v ir.Value) error {
	if ir.IsNoOp(v) {
		return nil
	}
	if v == nil {
		v = ir.Null{}
	}
	if err := s.rc.validValue(s.id, v); err != nil {
		return err
	}
	st, _ := s.rc.store.Read(s.id)
	st.Kind = ir.KindState
	st.Value = v
	s.rc.write(s.id, st)
	return nil
}
