package demo

import (
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// BoardChannel is the channel Board listens on.
const BoardChannel = "news"

// BoardLimit is how many messages Board keeps.
const BoardLimit = 5

// Board subscribes to BoardChannel and keeps the most recent messages.
func Board(rc *engine.RenderContext, _ ir.Object) ui.Node {
	recent := engine.UseState(rc, ir.Array{})
	ch := engine.UseChannel(rc, BoardChannel, func(payload ir.Value) error {
		return recent.Update(func(v ir.Value) ir.Value {
			arr, _ := v.(ir.Array)
			next := append(ir.Array{}, arr...)
			next = append(next, payload)
			if len(next) > BoardLimit {
				next = next[len(next)-BoardLimit:]
			}
			return next
		})
	})

	muted := engine.UseState(rc, ir.Bool(false))
	if m, _ := ir.AsBool(muted.Get()); m {
		_ = ch.Unsubscribe()
	} else {
		_ = ch.Subscribe()
	}
	toggle := rc.Handler(func(ir.Event) error {
		return muted.Update(func(v ir.Value) ir.Value {
			b, _ := ir.AsBool(v)
			return ir.Bool(!b)
		})
	})

	arr, _ := recent.Get().(ir.Array)
	lines := make([]ui.Node, 0, len(arr)+1)
	for _, m := range arr {
		lines = append(lines, ui.Text(valueText(m)))
	}
	label := "Mute"
	if !ch.Subscribed() {
		label = "Unmute"
	}
	lines = append(lines, ui.Button(label, toggle))
	return ui.VStack(lines...)
}
