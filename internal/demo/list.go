package demo

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// List loads a fixed list once and renders it.
func List(rc *engine.RenderContext, _ ir.Object) ui.Node {
	items := engine.UseAsync(rc, func(ctx context.Context) (ir.Value, error) {
		return ir.Array{ir.Int(1), ir.Int(2), ir.Int(3)}, nil
	}, engine.AsyncOptions{})

	return ui.VStack(ui.Text("Items"), renderResult(items))
}

// Catalog is the data behind Search.
var Catalog = []string{"apple", "apricot", "banana", "blueberry", "cherry"}

// Search filters Catalog by the "query" prop. Changing the query starts a
// new load; the previous results stay visible until it completes.
func Search(rc *engine.RenderContext, props ir.Object) ui.Node {
	query, _ := ir.AsString(props.Get("query"))
	results := engine.UseAsync(rc, func(ctx context.Context) (ir.Value, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(query, "!?") {
			return nil, fmt.Errorf("invalid query %q", query)
		}
		var out ir.Array
		for _, item := range Catalog {
			if strings.HasPrefix(item, query) {
				out = append(out, ir.String(item))
			}
		}
		if out == nil {
			out = ir.Array{}
		}
		return out, nil
	}, engine.AsyncOptions{DependsOn: ir.String(query), Disabled: query == ""}, engine.Name("results"))

	if results.Load() == ir.LoadDisabled {
		return ui.VStack(ui.Text("Type to search"))
	}
	return ui.VStack(ui.Text("Results for "+query), renderResult(results))
}

func renderResult(a *engine.Async) ui.Node {
	if a.Loading() {
		return ui.Text("Loading...")
	}
	r, ok := a.Result()
	if !ok {
		return ui.Text("Idle")
	}
	v, errInfo := r.Unpack()
	if errInfo != nil {
		return ui.Text("Error: " + errInfo.Message)
	}
	arr, _ := v.(ir.Array)
	parts := make([]string, len(arr))
	for i, item := range arr {
		parts[i] = valueText(item)
	}
	return ui.Text(strings.Join(parts, ", "))
}

func valueText(v ir.Value) string {
	switch t := v.(type) {
	case ir.String:
		return string(t)
	case ir.Int:
		return fmt.Sprint(int64(t))
	case ir.Bool:
		return fmt.Sprint(bool(t))
	}
	s, err := ir.CanonicalString(v)
	if err != nil {
		return "?"
	}
	return s
}
