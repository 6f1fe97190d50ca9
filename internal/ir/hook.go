package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HookID identifies one hook instance across renders.
//
// Positional hooks: "<path>/<namespace>#<ordinal>".
// Keyed hooks:      "<path>/<namespace>:<key>".
// The path is the app name for the root component and grows by
// "/<Child>@<key-or-ordinal>" for every nested component.
type HookID string

// ShapeSuffix names the bookkeeping entry holding a component's hook shape.
const ShapeSuffix = "/$shape"

// ShapeID returns the bookkeeping id for the component at path.
func ShapeID(path string) HookID {
	return HookID(path + ShapeSuffix)
}

// IsShape reports whether id is a shape bookkeeping entry.
func (id HookID) IsShape() bool {
	return strings.HasSuffix(string(id), ShapeSuffix)
}

// Path returns the component path that owns id.
func (id HookID) Path() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

// HookKind is the closed set of hook variants.
type HookKind string

const (
	KindState    HookKind = "state"
	KindAsync    HookKind = "async"
	KindInterval HookKind = "interval"
	KindWebView  HookKind = "webview"
	KindForm     HookKind = "form"
	KindChannel  HookKind = "channel"
	KindShape    HookKind = "shape"
)

// Valid reports whether k is a known kind.
func (k HookKind) Valid() bool {
	switch k {
	case KindState, KindAsync, KindInterval, KindWebView, KindForm, KindChannel, KindShape:
		return true
	}
	return false
}

// LoadState is the async hook lifecycle tag. Non-async hooks leave it empty.
type LoadState string

const (
	LoadInitial  LoadState = "initial"
	LoadLoading  LoadState = "loading"
	LoadLoaded   LoadState = "loaded"
	LoadError    LoadState = "error"
	LoadDisabled LoadState = "disabled"
)

// HookState is the persisted state of one hook.
//
// Value is opaque to everything but the owning hook implementation. For
// interval, webview and channel hooks Value is an object holding the small
// state machine ({"status": ...}); for forms it holds the generation counter
// and current form id.
type HookState struct {
	Kind       HookKind   `json:"kind"`
	Value      Value      `json:"value"`
	Load       LoadState  `json:"load,omitempty"`
	DepKey     string     `json:"dep_key,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	Persistent bool       `json:"persistent,omitempty"`
}

type hookStateJSON struct {
	Kind       HookKind        `json:"kind"`
	Value      json.RawMessage `json:"value"`
	Load       LoadState       `json:"load,omitempty"`
	DepKey     string          `json:"dep_key,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Persistent bool            `json:"persistent,omitempty"`
}

// MarshalJSON encodes Value through MarshalValue so a nil Value becomes null.
func (s HookState) MarshalJSON() ([]byte, error) {
	vb, err := MarshalValue(s.Value)
	if err != nil {
		return nil, fmt.Errorf("hook state value: %w", err)
	}
	return json.Marshal(hookStateJSON{
		Kind:       s.Kind,
		Value:      vb,
		Load:       s.Load,
		DepKey:     s.DepKey,
		RequestID:  s.RequestID,
		Error:      s.Error,
		Persistent: s.Persistent,
	})
}

// UnmarshalJSON decodes Value as a sealed Value.
func (s *HookState) UnmarshalJSON(data []byte) error {
	var raw hookStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.Valid() {
		return fmt.Errorf("unknown hook kind %q", raw.Kind)
	}
	var v Value = Null{}
	if len(raw.Value) > 0 {
		var err error
		v, err = UnmarshalValue(raw.Value)
		if err != nil {
			return fmt.Errorf("hook state value: %w", err)
		}
	}
	*s = HookState{
		Kind:       raw.Kind,
		Value:      v,
		Load:       raw.Load,
		DepKey:     raw.DepKey,
		RequestID:  raw.RequestID,
		Error:      raw.Error,
		Persistent: raw.Persistent,
	}
	return nil
}

// toObject is the canonical form used for equality and digests.
func (s HookState) toObject() Object {
	obj := Object{
		"kind":  String(s.Kind),
		"value": s.Value,
	}
	if obj["value"] == nil {
		obj["value"] = Null{}
	}
	if s.Load != "" {
		obj["load"] = String(s.Load)
	}
	if s.DepKey != "" {
		obj["dep_key"] = String(s.DepKey)
	}
	if s.RequestID != "" {
		obj["request_id"] = String(s.RequestID)
	}
	if s.Error != nil {
		obj["error"] = s.Error.toObject()
	}
	if s.Persistent {
		obj["persistent"] = Bool(true)
	}
	return obj
}

// Canonical returns the RFC 8785 encoding of the state.
func (s HookState) Canonical() ([]byte, error) {
	return MarshalCanonical(s.toObject())
}

// Equal reports whether two states have the same canonical encoding.
func (s HookState) Equal(other HookState) bool {
	return Equal(s.toObject(), other.toObject())
}
