package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// hook is the closed set of dispatch targets: *State, *Async, *Interval,
// *WebView, *Form, *Channel and *handler. The dispatcher switches over the
// concrete types exhaustively.
type hook interface {
	hookID() ir.HookID
}

// handler is a stateless user-interaction target.
type handler struct {
	id ir.HookID
	fn func(ev ir.Event) error
}

func (h *handler) hookID() ir.HookID { return h.id }

// statusOf reads the "status" field of an object-valued hook state.
func statusOf(st ir.HookState) string {
	obj, ok := st.Value.(ir.Object)
	if !ok {
		return ""
	}
	s, _ := ir.AsString(obj.Get("status"))
	return s
}

// fieldString reads a string field of an object-valued hook state.
func fieldString(st ir.HookState, key string) string {
	obj, ok := st.Value.(ir.Object)
	if !ok {
		return ""
	}
	s, _ := ir.AsString(obj.Get(key))
	return s
}

// fieldInt reads an int field of an object-valued hook state.
func fieldInt(st ir.HookState, key string) int64 {
	obj, ok := st.Value.(ir.Object)
	if !ok {
		return 0
	}
	n, _ := ir.AsInt(obj.Get(key))
	return n
}

// teardown returns the effect that releases a pruned hook's host resource,
// if it holds one.
func teardown(id ir.HookID, st ir.HookState) (ir.Effect, bool) {
	switch st.Kind {
	case ir.KindInterval:
		if statusOf(st) == statusRunning {
			return ir.ClearTimer(id), true
		}
	case ir.KindWebView:
		if statusOf(st) == statusMounted {
			return ir.UnmountSurface(id), true
		}
	case ir.KindChannel:
		if statusOf(st) == statusSubscribed {
			return ir.UnsubscribeChannel(id, fieldString(st, "channel")), true
		}
	}
	return ir.Effect{}, false
}

const (
	statusRunning      = "running"
	statusStopped      = "stopped"
	statusMounted      = "mounted"
	statusUnmounted    = "unmounted"
	statusSubscribed   = "subscribed"
	statusUnsubscribed = "unsubscribed"
)
