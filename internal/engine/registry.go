package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/rehook/internal/ir"
)

// IdentityMode selects how positional hook identity handles divergence
// from the shape stored by the previous render.
type IdentityMode int

const (
	// IdentityStrict fails the cycle with ErrAmbiguousHookIdentity when a
	// positional hook lands on a slot previously held by a different hook.
	IdentityStrict IdentityMode = iota

	// IdentityPositional reinitializes every positional hook of the
	// component from the point of divergence onward.
	IdentityPositional
)

func (m IdentityMode) String() string {
	if m == IdentityPositional {
		return "positional"
	}
	return "strict"
}

// ParseIdentityMode parses "strict" or "positional".
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch s {
	case "", "strict":
		return IdentityStrict, nil
	case "positional":
		return IdentityPositional, nil
	}
	return IdentityStrict, fmt.Errorf("unknown identity mode %q (want strict or positional)", s)
}

// hookConfig is assembled from HookOptions.
type hookConfig struct {
	key        string
	namespace  string
	persistent bool
}

// HookOption configures a hook's identity or lifetime.
type HookOption func(*hookConfig)

// Key gives the hook an explicit identifier within its component. Keyed
// hooks keep their state regardless of call order; use them for any hook
// that is not registered on every render.
func Key(key string) HookOption {
	return func(c *hookConfig) { c.key = key }
}

// Name sets the namespace part of the hook id (defaults to the hook kind).
func Name(namespace string) HookOption {
	return func(c *hookConfig) { c.namespace = namespace }
}

// Persistent keeps the hook's state when a render stops producing it.
func Persistent() HookOption {
	return func(c *hookConfig) { c.persistent = true }
}

func buildConfig(opts []HookOption) hookConfig {
	var c hookConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}

const reservedIDChars = "/#:@$"

// pass is the per-render dispatch table.
type pass struct {
	hooks  map[ir.HookID]hook
	order  []ir.HookID
	frames []*frame
}

func newPass() *pass {
	return &pass{hooks: make(map[ir.HookID]hook)}
}

// frame tracks one component invocation.
type frame struct {
	path      string
	depth     int
	ordinals  map[string]int
	handlers  map[string]int
	keys      map[string]struct{}
	children  map[string]int
	childKeys map[string]struct{}
	shape     []string
	stored    []string
	diverged  bool
}

func (rc *RenderContext) newFrame(path string, depth int) *frame {
	f := &frame{
		path:      path,
		depth:     depth,
		ordinals:  make(map[string]int),
		handlers:  make(map[string]int),
		keys:      make(map[string]struct{}),
		children:  make(map[string]int),
		childKeys: make(map[string]struct{}),
	}
	if st, ok := rc.store.Read(ir.ShapeID(path)); ok {
		if arr, ok := st.Value.(ir.Array); ok {
			for _, v := range arr {
				s, _ := ir.AsString(v)
				f.stored = append(f.stored, s)
			}
		}
	}
	return f
}

func (rc *RenderContext) current() *frame {
	if rc.pass == nil || len(rc.pass.frames) == 0 {
		return nil
	}
	return rc.pass.frames[len(rc.pass.frames)-1]
}

// registerHook resolves the id of the hook being declared and touches its
// store entry. fresh reports that stored state must be ignored because
// positional identity diverged (positional mode only).
func (rc *RenderContext) registerHook(kind ir.HookKind, cfg hookConfig) (id ir.HookID, fresh bool, err error) {
	f := rc.current()
	if rc.phase != phaseRender || f == nil {
		return "", false, rc.fail(newRenderError(ErrCodeNotInRenderContext, "", "",
			"%s hook registered outside a render pass", kind))
	}
	if err := rc.hooks.Check(); err != nil {
		return "", false, rc.fail(err)
	}

	ns := cfg.namespace
	if ns == "" {
		ns = string(kind)
	}
	if strings.ContainsAny(ns, reservedIDChars) || strings.ContainsAny(cfg.key, reservedIDChars) {
		return "", false, rc.fail(newRenderError(ErrCodeInvalidValue, "", f.path,
			"hook namespace %q and key %q must not contain any of %q", ns, cfg.key, reservedIDChars))
	}

	if cfg.key != "" {
		slot := ns + ":" + cfg.key
		if _, dup := f.keys[slot]; dup {
			return "", false, rc.fail(newRenderError(ErrCodeDuplicateHookKey, ir.HookID(f.path+"/"+slot), f.path,
				"key %q used twice in one render", cfg.key))
		}
		f.keys[slot] = struct{}{}
		id = ir.HookID(f.path + "/" + slot)
	} else {
		n := f.ordinals[ns]
		f.ordinals[ns] = n + 1
		id = ir.HookID(fmt.Sprintf("%s/%s#%d", f.path, ns, n))

		entry := string(kind) + ":" + ns
		pos := len(f.shape)
		f.shape = append(f.shape, entry)
		if !f.diverged && pos < len(f.stored) && f.stored[pos] != entry {
			if rc.engine.mode == IdentityStrict {
				return "", false, rc.fail(newRenderError(ErrCodeAmbiguousHookIdentity, id, f.path,
					"hook %d was %s on the previous render and is %s now; give conditional hooks an explicit Key",
					pos, f.stored[pos], entry))
			}
			f.diverged = true
			rc.logger.Debug("positional identity diverged, reinitializing",
				"path", f.path,
				"position", pos,
				"was", f.stored[pos],
				"now", entry,
			)
		}
		fresh = f.diverged
	}

	if st, ok := rc.store.Read(id); ok && st.Kind != kind && !fresh {
		if rc.engine.mode == IdentityStrict {
			return "", false, rc.fail(newRenderError(ErrCodeAmbiguousHookIdentity, id, f.path,
				"stored state is a %s hook, render declares %s", st.Kind, kind))
		}
		fresh = true
	}

	rc.store.Touch(id)
	return id, fresh, nil
}

// bind adds a hook to the dispatch table of the current pass. Hooks and
// handlers count ordinals separately, so a handler named after a hook
// namespace can resolve to an id already bound; that fails the render
// rather than letting one shadow the other.
func (rc *RenderContext) bind(h hook) {
	id := h.hookID()
	if prev, ok := rc.pass.hooks[id]; ok {
		f := rc.current()
		path := ""
		if f != nil {
			path = f.path
		}
		rc.fail(newRenderError(ErrCodeDuplicateHookKey, id, path,
			"id %s bound twice in one render (%T and %T); give one of them a distinct Name or Key", id, prev, h))
		return
	}
	rc.pass.order = append(rc.pass.order, id)
	rc.pass.hooks[id] = h
}

// finishFrame persists the component's positional shape.
func (rc *RenderContext) finishFrame(f *frame) {
	if len(f.shape) == 0 {
		return
	}
	arr := make(ir.Array, len(f.shape))
	for i, s := range f.shape {
		arr[i] = ir.String(s)
	}
	id := ir.ShapeID(f.path)
	st := ir.HookState{Kind: ir.KindShape, Value: arr}
	if prev, ok := rc.store.Read(id); !ok || !prev.Equal(st) {
		rc.store.Write(id, st)
	}
	rc.store.Touch(id)
}
