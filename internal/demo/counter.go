package demo

import (
	"strconv"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// Counter shows a number and buttons to change it. The initial value comes
// from the "start" prop.
func Counter(rc *engine.RenderContext, props ir.Object) ui.Node {
	start, _ := ir.AsInt(props.Get("start"))
	count := engine.UseState(rc, ir.Int(start))

	inc := rc.Handler(func(ir.Event) error {
		return count.Update(func(v ir.Value) ir.Value {
			n, _ := ir.AsInt(v)
			return ir.Int(n + 1)
		})
	})
	reset := rc.Handler(func(ir.Event) error {
		return count.Update(func(v ir.Value) ir.Value {
			if n, _ := ir.AsInt(v); n == start {
				return ir.NoOp
			}
			return ir.Int(start)
		})
	})

	return ui.VStack(
		ui.Text(strconv.FormatInt(count.Int(), 10)),
		ui.HStack(
			ui.Button("Increment", inc),
			ui.Button("Reset", reset),
		),
	)
}
