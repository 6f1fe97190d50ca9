// Package demo holds example components for every hook kind. The CLI and
// server expose them as apps; tests and harness scenarios drive them.
package demo

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/rehook/internal/engine"
)

// App is a named root component.
type App struct {
	Name        string
	Description string
	Root        engine.Component
}

var apps = []App{
	{Name: "counter", Description: "state hook incremented by a button", Root: Counter},
	{Name: "list", Description: "async hook that loads a list once", Root: List},
	{Name: "search", Description: "async hook keyed on a query", Root: Search},
	{Name: "ticker", Description: "auto-started interval inside a removable child", Root: Ticker},
	{Name: "surfaces", Description: "two web views echoing their own messages", Root: Surfaces},
	{Name: "survey", Description: "modal form with a submit handler", Root: Survey},
	{Name: "board", Description: "channel subscriber keeping recent messages", Root: Board},
}

// Apps returns every demo app sorted by name.
func Apps() []App {
	out := slices.Clone(apps)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds an app by name.
func Lookup(name string) (App, error) {
	for _, a := range apps {
		if a.Name == name {
			return a, nil
		}
	}
	return App{}, fmt.Errorf("unknown app %q", name)
}

// Engine builds an engine for the named app.
func Engine(name string, opts ...engine.Option) (*engine.Engine, error) {
	a, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return engine.New(a.Name, a.Root, opts...), nil
}

// Engines builds one engine per app, sorted by name.
func Engines(opts ...engine.Option) []*engine.Engine {
	all := Apps()
	out := make([]*engine.Engine, 0, len(all))
	for _, a := range all {
		out = append(out, engine.New(a.Name, a.Root, opts...))
	}
	return out
}
