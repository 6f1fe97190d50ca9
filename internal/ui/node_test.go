package ui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeferred struct{ name string }

func (f fakeDeferred) ComponentName() string { return f.name }

func TestTextContent(t *testing.T) {
	tree := VStack(
		Text("Count"),
		HStack(Text("0"), Button("+1", "h1")),
		Image("logo.png"),
	)
	assert.Equal(t, "Count 0 +1", tree.TextContent())
}

func TestFindButton(t *testing.T) {
	tree := VStack(Button("a", "h1"), HStack(Button("b", "h2")))

	b, ok := tree.FindButton("b")
	require.True(t, ok)
	assert.Equal(t, "h2", b.Handler)

	_, ok = tree.FindButton("c")
	assert.False(t, ok)
}

func TestResolved(t *testing.T) {
	assert.True(t, VStack(Text("x")).Resolved())
	assert.False(t, VStack(Placeholder(fakeDeferred{"Child"})).Resolved())
}

func TestSurfaces(t *testing.T) {
	tree := HStack(WebView("App/webview#0"), WebView("App/webview#1"))
	assert.Equal(t, []string{"App/webview#0", "App/webview#1"}, func() []string {
		var out []string
		for _, id := range tree.Surfaces() {
			out = append(out, string(id))
		}
		return out
	}())
}

func TestNodeJSONOmitsDeferred(t *testing.T) {
	b, err := json.Marshal(VStack(Text("hi"), Empty()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"vstack","children":[{"type":"text","text":"hi"},{"type":"fragment"}]}`, string(b))
}
