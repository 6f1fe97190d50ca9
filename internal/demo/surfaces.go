package demo

import (
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// Surfaces mounts two panels side by side. Each panel echoes the messages
// its own surface posts, tagged with the panel name.
func Surfaces(rc *engine.RenderContext, _ ir.Object) ui.Node {
	return ui.HStack(
		engine.Element("Panel", Panel, ir.Object{"name": ir.String("left")}, "left"),
		engine.Element("Panel", Panel, ir.Object{"name": ir.String("right")}, "right"),
	)
}

// Panel is one web view surface with a received-message counter.
func Panel(rc *engine.RenderContext, props ir.Object) ui.Node {
	name, _ := ir.AsString(props.Get("name"))
	received := engine.UseState(rc, ir.Int(0))
	wv := engine.UseWebView(rc, engine.WebViewOptions{
		URL: "panel.html",
		OnMessage: func(wv *engine.WebView, payload ir.Value) error {
			if err := received.Update(func(v ir.Value) ir.Value {
				n, _ := ir.AsInt(v)
				return ir.Int(n + 1)
			}); err != nil {
				return err
			}
			return wv.PostMessage(ir.Object{"panel": ir.String(name), "echo": payload})
		},
		OnUnmount: func(wv *engine.WebView) error {
			return wv.PostMessage(ir.Object{"panel": ir.String(name), "closed": ir.Bool(true)})
		},
	})
	_ = wv.Mount()

	return ui.VStack(
		ui.Text(name+": "+valueText(received.Get())),
		ui.WebView(wv.ID()),
	)
}
