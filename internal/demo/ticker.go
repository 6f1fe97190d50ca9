package demo

import (
	"strconv"
	"time"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// TickInterval is the period of the Clock child.
const TickInterval = time.Second

// Ticker shows a Clock child until "Hide" is pressed. Hiding the child
// prunes its interval, which clears the host timer.
func Ticker(rc *engine.RenderContext, _ ir.Object) ui.Node {
	visible := engine.UseState(rc, ir.Bool(true), engine.Key("visible"))
	toggle := rc.Handler(func(ir.Event) error {
		return visible.Update(func(v ir.Value) ir.Value {
			b, _ := ir.AsBool(v)
			return ir.Bool(!b)
		})
	}, engine.Key("toggle"))

	if shown, _ := ir.AsBool(visible.Get()); !shown {
		return ui.VStack(ui.Button("Show", toggle))
	}
	return ui.VStack(
		engine.Element("Clock", Clock, nil, ""),
		ui.Button("Hide", toggle),
	)
}

// Clock counts ticks of an interval that runs while the clock is mounted
// and not paused.
func Clock(rc *engine.RenderContext, _ ir.Object) ui.Node {
	ticks := engine.UseState(rc, ir.Int(0))
	paused := engine.UseState(rc, ir.Bool(false))
	iv := engine.UseInterval(rc, func() error {
		return ticks.Update(func(v ir.Value) ir.Value {
			n, _ := ir.AsInt(v)
			return ir.Int(n + 1)
		})
	}, TickInterval)

	label := "Pause"
	if p, _ := ir.AsBool(paused.Get()); p {
		_ = iv.Stop()
		label = "Resume"
	} else {
		_ = iv.Start()
	}

	pause := rc.Handler(func(ir.Event) error {
		return paused.Update(func(v ir.Value) ir.Value {
			b, _ := ir.AsBool(v)
			return ir.Bool(!b)
		})
	})

	return ui.VStack(
		ui.Text("Ticks: "+strconv.FormatInt(ticks.Int(), 10)),
		ui.Button(label, pause),
	)
}
