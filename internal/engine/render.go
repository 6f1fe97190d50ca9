package engine

import (
	"strconv"
	"strings"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// Component renders one level of the UI. Hooks are declared on rc during
// the call, in the same order on every render unless they carry a Key.
type Component func(rc *RenderContext, props ir.Object) ui.Node

// element is the engine's deferred placeholder for a nested component.
type element struct {
	name  string
	comp  Component
	props ir.Object
	key   string
}

func (e *element) ComponentName() string { return e.name }

// Element defers rendering a nested component until the parent returns.
// Siblings with the same name are told apart by key, or by their order
// among same-named siblings when key is empty.
func Element(name string, comp Component, props ir.Object, key string) ui.Node {
	if props == nil {
		props = ir.Object{}
	}
	return ui.Placeholder(&element{name: name, comp: comp, props: props, key: key})
}

// renderPass runs the root component and resolves every placeholder.
func (rc *RenderContext) renderPass() (ui.Node, error) {
	if err := rc.ctx.Err(); err != nil {
		return ui.Node{}, err
	}
	rc.store.BeginPass()
	rc.pass = newPass()
	rc.hooks.Reset()
	rc.phase = phaseRender
	rc.passVersion = rc.version
	defer func() { rc.phase = phaseIdle }()

	root := rc.newFrame(rc.engine.name, 0)
	node, err := rc.runComponent(root, rc.engine.root, rc.props)
	if err == nil {
		node, err = rc.resolve(root, node)
	}
	if err == nil && rc.fatal != nil {
		err = rc.fatal
	}
	if err != nil {
		return ui.Node{}, err
	}
	// Version at the end of the pass: writes made by the render itself do
	// not make the dispatch table stale.
	rc.passVersion = rc.version
	return node, nil
}

// runComponent invokes comp inside its own frame. Panics become
// ErrCodeComponentPanic render errors unless they carry an interrupt.
func (rc *RenderContext) runComponent(f *frame, comp Component, props ir.Object) (node ui.Node, err error) {
	rc.pass.frames = append(rc.pass.frames, f)
	defer func() {
		rc.pass.frames = rc.pass.frames[:len(rc.pass.frames)-1]
		if r := recover(); r != nil {
			perr := recoverAsError(r)
			if !IsInterrupt(perr) {
				re := newRenderError(ErrCodeComponentPanic, "", f.path, "component panicked")
				re.Cause = perr
				perr = re
			}
			err = rc.fail(perr)
		}
	}()

	node = comp(rc, props)
	if rc.fatal != nil {
		return ui.Node{}, rc.fatal
	}
	rc.finishFrame(f)
	return node, nil
}

// resolve replaces placeholders depth-first until only primitives remain.
func (rc *RenderContext) resolve(parent *frame, n ui.Node) (ui.Node, error) {
	if n.Deferred != nil {
		el, ok := n.Deferred.(*element)
		if !ok || el.comp == nil {
			return ui.Node{}, rc.fail(newRenderError(ErrCodeInvalidElement, "", parent.path,
				"placeholder %q was not created by engine.Element", n.Deferred.ComponentName()))
		}
		if strings.ContainsAny(el.name, reservedIDChars) || strings.ContainsAny(el.key, reservedIDChars) {
			return ui.Node{}, rc.fail(newRenderError(ErrCodeInvalidElement, "", parent.path,
				"element name %q and key %q must not contain any of %q", el.name, el.key, reservedIDChars))
		}

		seg := el.key
		if seg == "" {
			ord := parent.children[el.name]
			parent.children[el.name] = ord + 1
			seg = strconv.Itoa(ord)
		} else {
			slot := el.name + "@" + el.key
			if _, dup := parent.childKeys[slot]; dup {
				return ui.Node{}, rc.fail(newRenderError(ErrCodeDuplicateHookKey, "", parent.path,
					"element %s key %q used twice", el.name, el.key))
			}
			parent.childKeys[slot] = struct{}{}
		}

		depth := parent.depth + 1
		if depth > rc.engine.budget.MaxRenderDepth {
			return ui.Node{}, rc.fail(&BudgetExceededError{Limit: LimitDepth, Count: depth, Max: rc.engine.budget.MaxRenderDepth})
		}
		child := rc.newFrame(parent.path+"/"+el.name+"@"+seg, depth)
		out, err := rc.runComponent(child, el.comp, el.props)
		if err != nil {
			return ui.Node{}, err
		}
		return rc.resolve(child, out)
	}

	if len(n.Children) == 0 {
		return n, nil
	}
	children := make([]ui.Node, len(n.Children))
	for i, c := range n.Children {
		r, err := rc.resolve(parent, c)
		if err != nil {
			return ui.Node{}, err
		}
		children[i] = r
	}
	n.Children = children
	return n, nil
}

// Handler registers fn as the target of user-interaction events and
// returns its id for ui.Button. Handlers hold no state and are not part of
// the positional shape.
func (rc *RenderContext) Handler(fn func(ev ir.Event) error, opts ...HookOption) string {
	f := rc.current()
	if rc.phase != phaseRender || f == nil {
		rc.fail(newRenderError(ErrCodeNotInRenderContext, "", "", "handler registered outside a render pass"))
		return ""
	}
	cfg := buildConfig(opts)
	ns := cfg.namespace
	if ns == "" {
		ns = "handler"
	}
	if strings.ContainsAny(ns, reservedIDChars) || strings.ContainsAny(cfg.key, reservedIDChars) {
		rc.fail(newRenderError(ErrCodeInvalidValue, "", f.path,
			"handler namespace %q and key %q must not contain any of %q", ns, cfg.key, reservedIDChars))
		return ""
	}

	var id ir.HookID
	if cfg.key != "" {
		slot := "on." + ns + ":" + cfg.key
		if _, dup := f.keys[slot]; dup {
			rc.fail(newRenderError(ErrCodeDuplicateHookKey, "", f.path, "handler key %q used twice in one render", cfg.key))
			return ""
		}
		f.keys[slot] = struct{}{}
		id = ir.HookID(f.path + "/" + ns + ":" + cfg.key)
	} else {
		n := f.handlers[ns]
		f.handlers[ns] = n + 1
		id = ir.HookID(f.path + "/" + ns + "#" + strconv.Itoa(n))
	}
	rc.bind(&handler{id: id, fn: fn})
	return string(id)
}
