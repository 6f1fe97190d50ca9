package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// DefaultSurfaceURL is mounted when WebViewOptions.URL is empty.
const DefaultSurfaceURL = "index.html"

// WebViewOptions configures UseWebView.
type WebViewOptions struct {
	// URL of the surface resource. Defaults to DefaultSurfaceURL.
	URL string

	// OnMessage receives messages the surface posts to this hook.
	OnMessage func(wv *WebView, payload ir.Value) error

	// OnUnmount runs when the host reports the surface was torn down. It
	// may still post a final message.
	OnUnmount func(wv *WebView) error
}

// WebView is an externally mounted interactive surface: unmounted | mounted.
// Every message in either direction is correlated by the hook id, so any
// number of web views can coexist without cross-talk.
type WebView struct {
	rc   *RenderContext
	id   ir.HookID
	opts WebViewOptions
}

func (wv *WebView) hookID() ir.HookID { return wv.id }

// UseWebView declares a web view surface.
func UseWebView(rc *RenderContext, opts WebViewOptions, hopts ...HookOption) *WebView {
	cfg := buildConfig(hopts)
	id, fresh, err := rc.registerHook(ir.KindWebView, cfg)
	if opts.URL == "" {
		opts.URL = DefaultSurfaceURL
	}
	wv := &WebView{rc: rc, id: id, opts: opts}
	if err != nil {
		return wv
	}
	rc.bind(wv)

	if _, ok := rc.store.Read(id); !ok || fresh {
		rc.write(id, ir.HookState{
			Kind:       ir.KindWebView,
			Value:      ir.Object{"status": ir.String(statusUnmounted)},
			Persistent: cfg.persistent,
		})
	}
	return wv
}

// ID returns the hook id, which also names the surface slot.
func (wv *WebView) ID() ir.HookID { return wv.id }

// Mounted reports whether the surface is shown.
func (wv *WebView) Mounted() bool {
	st, _ := wv.rc.store.Read(wv.id)
	return statusOf(st) == statusMounted
}

// Mount shows the surface. Repeated calls with the same URL emit nothing.
func (wv *WebView) Mount() error {
	if err := wv.rc.requireActive(wv.id, "WebView.Mount"); err != nil {
		return err
	}
	st, _ := wv.rc.store.Read(wv.id)
	if statusOf(st) == statusMounted && fieldString(st, "url") == wv.opts.URL {
		return nil
	}
	wv.setStatus(statusMounted)
	wv.rc.emit(ir.MountSurface(wv.id, wv.opts.URL))
	return nil
}

// Unmount tears the surface down.
func (wv *WebView) Unmount() error {
	if err := wv.rc.requireActive(wv.id, "WebView.Unmount"); err != nil {
		return err
	}
	if !wv.Mounted() {
		return nil
	}
	wv.setStatus(statusUnmounted)
	wv.rc.emit(ir.UnmountSurface(wv.id))
	return nil
}

// PostMessage sends data to this surface only.
func (wv *WebView) PostMessage(data ir.Value) error {
	if err := wv.rc.requireActive(wv.id, "WebView.PostMessage"); err != nil {
		return err
	}
	if data == nil {
		data = ir.Null{}
	}
	if err := wv.rc.validValue(wv.id, data); err != nil {
		return err
	}
	wv.rc.emit(ir.PostMessage(wv.id, data))
	return nil
}

func (wv *WebView) setStatus(status string) {
	st, _ := wv.rc.store.Read(wv.id)
	st.Kind = ir.KindWebView
	obj := ir.Object{"status": ir.String(status)}
	if status == statusMounted {
		obj["url"] = ir.String(wv.opts.URL)
	}
	st.Value = obj
	wv.rc.write(wv.id, st)
}

// message applies a surface-message event.
func (wv *WebView) message(index int, ev ir.Event) (string, error) {
	if wv.opts.OnMessage == nil {
		return dropNoHandler, nil
	}
	payload := ev.Payload
	if payload == nil {
		payload = ir.Null{}
	}
	return "", wv.rc.invoke(index, ev, wv.id, func() error { return wv.opts.OnMessage(wv, payload) })
}

// visibility applies a surface-visibility-change event. A hidden surface
// runs OnUnmount before the hook returns to unmounted; the host already
// tore the surface down, so no unmount effect is emitted.
func (wv *WebView) visibility(index int, ev ir.Event) (string, error) {
	if ev.Visible() {
		if !wv.Mounted() {
			wv.setStatus(statusMounted)
		}
		return "", nil
	}
	if !wv.Mounted() {
		return dropNotMounted, nil
	}
	var err error
	if wv.opts.OnUnmount != nil {
		err = wv.rc.invoke(index, ev, wv.id, func() error { return wv.opts.OnUnmount(wv) })
	}
	wv.setStatus(statusUnmounted)
	return "", err
}
