package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/rehook/internal/ir"
)

// marshalProps converts props to canonical JSON TEXT for storage.
func marshalProps(props ir.Object) (string, error) {
	if props == nil {
		props = ir.Object{}
	}
	data, err := ir.MarshalCanonical(props)
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}
	return string(data), nil
}

// unmarshalProps parses stored props. Large integers survive through
// ir.Object's json.Number decoding.
func unmarshalProps(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal props: %w", err)
	}
	return obj, nil
}

// marshalState converts a hook state to its canonical JSON TEXT.
func marshalState(st ir.HookState) (string, error) {
	data, err := st.Canonical()
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

func unmarshalState(data string) (ir.HookState, error) {
	var st ir.HookState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return ir.HookState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}

// marshalJSON encodes v with HTML escaping disabled so stored text matches
// what the wire carries.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
