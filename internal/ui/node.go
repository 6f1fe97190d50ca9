// Package ui is the declarative node vocabulary components render into.
//
// The engine is agnostic to what leaves mean; hosts interpret the tree.
// A node with a Deferred placeholder is a nested component the render
// engine still has to resolve.
package ui

import (
	"strings"

	"github.com/roach88/rehook/internal/ir"
)

// Type names a primitive node.
type Type string

const (
	TypeText     Type = "text"
	TypeVStack   Type = "vstack"
	TypeHStack   Type = "hstack"
	TypeButton   Type = "button"
	TypeImage    Type = "image"
	TypeWebView  Type = "webview"
	TypeFragment Type = "fragment"
	TypeDeferred Type = "deferred"
)

// Deferred is a component placeholder. The engine owns the concrete type.
type Deferred interface {
	ComponentName() string
}

// Node is one element of the UI tree.
type Node struct {
	Type     Type      `json:"type"`
	Text     string    `json:"text,omitempty"`
	Handler  string    `json:"handler,omitempty"`
	URL      string    `json:"url,omitempty"`
	Surface  ir.HookID `json:"surface,omitempty"`
	Children []Node    `json:"children,omitempty"`
	Deferred Deferred  `json:"-"`
}

func Text(s string) Node { return Node{Type: TypeText, Text: s} }

func VStack(children ...Node) Node { return Node{Type: TypeVStack, Children: children} }

func HStack(children ...Node) Node { return Node{Type: TypeHStack, Children: children} }

// Button renders a pressable label bound to a handler id from
// RenderContext.Handler.
func Button(label, handler string) Node {
	return Node{Type: TypeButton, Text: label, Handler: handler}
}

func Image(url string) Node { return Node{Type: TypeImage, URL: url} }

// WebView reserves the slot a mounted surface is displayed in.
func WebView(surface ir.HookID) Node { return Node{Type: TypeWebView, Surface: surface} }

func Fragment(children ...Node) Node { return Node{Type: TypeFragment, Children: children} }

// Empty renders nothing.
func Empty() Node { return Node{Type: TypeFragment} }

// Placeholder wraps a deferred component.
func Placeholder(d Deferred) Node {
	return Node{Type: TypeDeferred, Text: d.ComponentName(), Deferred: d}
}

// Resolved reports whether no deferred placeholders remain in the tree.
func (n Node) Resolved() bool {
	if n.Deferred != nil || n.Type == TypeDeferred {
		return false
	}
	for _, c := range n.Children {
		if !c.Resolved() {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n Node) Walk(fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// TextContent joins all text and button labels with single spaces.
func (n Node) TextContent() string {
	var parts []string
	n.Walk(func(c Node) bool {
		if (c.Type == TypeText || c.Type == TypeButton) && c.Text != "" {
			parts = append(parts, c.Text)
		}
		return true
	})
	return strings.Join(parts, " ")
}

// FindButton returns the first button with the given label.
func (n Node) FindButton(label string) (Node, bool) {
	var found Node
	var ok bool
	n.Walk(func(c Node) bool {
		if ok {
			return false
		}
		if c.Type == TypeButton && c.Text == label {
			found, ok = c, true
			return false
		}
		return true
	})
	return found, ok
}

// Surfaces lists the web view slots in render order.
func (n Node) Surfaces() []ir.HookID {
	var out []ir.HookID
	n.Walk(func(c Node) bool {
		if c.Type == TypeWebView {
			out = append(out, c.Surface)
		}
		return true
	})
	return out
}
