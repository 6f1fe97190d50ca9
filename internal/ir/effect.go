package ir

import (
	"encoding/json"
	"fmt"
)

// EffectKind is the closed set of instructions for the host.
type EffectKind string

const (
	EffectSetTimer           EffectKind = "set-timer"
	EffectClearTimer         EffectKind = "clear-timer"
	EffectShowForm           EffectKind = "show-form"
	EffectMountSurface       EffectKind = "mount-surface"
	EffectUnmountSurface     EffectKind = "unmount-surface"
	EffectPostMessage        EffectKind = "post-message"
	EffectShowToast          EffectKind = "show-toast"
	EffectSubscribeChannel   EffectKind = "subscribe-channel"
	EffectUnsubscribeChannel EffectKind = "unsubscribe-channel"
)

// Family groups kinds whose effects supersede each other per target.
// The empty family means the kind is never coalesced.
func (k EffectKind) Family() string {
	switch k {
	case EffectSetTimer, EffectClearTimer:
		return "timer"
	case EffectMountSurface, EffectUnmountSurface:
		return "surface"
	case EffectShowForm:
		return "form"
	case EffectSubscribeChannel, EffectUnsubscribeChannel:
		return "channel"
	}
	return ""
}

// Valid reports whether k is a known effect kind.
func (k EffectKind) Valid() bool {
	switch k {
	case EffectSetTimer, EffectClearTimer, EffectShowForm, EffectMountSurface, EffectUnmountSurface,
		EffectPostMessage, EffectShowToast, EffectSubscribeChannel, EffectUnsubscribeChannel:
		return true
	}
	return false
}

// Effect is one instruction emitted during a cycle. Exactly one payload
// pointer is set, matching Kind; clear-timer and unmount-surface carry none.
type Effect struct {
	ID      string          `json:"id"`
	Kind    EffectKind      `json:"kind"`
	Target  HookID          `json:"target"`
	Timer   *TimerPayload   `json:"timer,omitempty"`
	Form    *FormPayload    `json:"form,omitempty"`
	Surface *SurfacePayload `json:"surface,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Toast   *ToastPayload   `json:"toast,omitempty"`
	Channel *ChannelPayload `json:"channel,omitempty"`
}

// TimerPayload describes a repeating timer.
type TimerPayload struct {
	DurationMS int64 `json:"duration_ms"`
}

// FormPayload carries a resolved form description.
type FormPayload struct {
	FormID string   `json:"form_id"`
	Spec   FormSpec `json:"spec"`
}

// FormSpec describes a modal form. Field validation is the presentation
// layer's concern.
type FormSpec struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	AcceptLabel string      `json:"accept_label,omitempty"`
	Fields      []FormField `json:"fields"`
}

// FormField is one input of a form.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type"`
	Default  Value  `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// UnmarshalJSON decodes Default as a sealed Value.
func (f *FormField) UnmarshalJSON(data []byte) error {
	type alias FormField
	aux := struct {
		*alias
		Default json.RawMessage `json:"default,omitempty"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := decodeOptionalValue(aux.Default)
	if err != nil {
		return fmt.Errorf("field %q default: %w", f.Name, err)
	}
	f.Default = v
	return nil
}

// SurfacePayload locates the resource a surface should load.
type SurfacePayload struct {
	URL string `json:"url"`
}

// MessagePayload is an outbound message for a surface.
type MessagePayload struct {
	Data Value `json:"data"`
}

// UnmarshalJSON decodes Data as a sealed Value.
func (m *MessagePayload) UnmarshalJSON(data []byte) error {
	var aux struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := decodeOptionalValue(aux.Data)
	if err != nil {
		return fmt.Errorf("message data: %w", err)
	}
	if v == nil {
		v = Null{}
	}
	m.Data = v
	return nil
}

// ToastPayload is a transient notification.
type ToastPayload struct {
	Text       string `json:"text"`
	Appearance string `json:"appearance,omitempty"`
}

// ChannelPayload names a realtime channel.
type ChannelPayload struct {
	Name string `json:"name"`
}

// Constructors. Ids are assigned by the emitter when effects are collected.

func SetTimer(target HookID, durationMS int64) Effect {
	return Effect{Kind: EffectSetTimer, Target: target, Timer: &TimerPayload{DurationMS: durationMS}}
}

func ClearTimer(target HookID) Effect {
	return Effect{Kind: EffectClearTimer, Target: target}
}

func ShowForm(target HookID, formID string, spec FormSpec) Effect {
	return Effect{Kind: EffectShowForm, Target: target, Form: &FormPayload{FormID: formID, Spec: spec}}
}

func MountSurface(target HookID, url string) Effect {
	return Effect{Kind: EffectMountSurface, Target: target, Surface: &SurfacePayload{URL: url}}
}

func UnmountSurface(target HookID) Effect {
	return Effect{Kind: EffectUnmountSurface, Target: target}
}

func PostMessage(target HookID, data Value) Effect {
	if data == nil {
		data = Null{}
	}
	return Effect{Kind: EffectPostMessage, Target: target, Message: &MessagePayload{Data: data}}
}

func ShowToast(target HookID, text, appearance string) Effect {
	return Effect{Kind: EffectShowToast, Target: target, Toast: &ToastPayload{Text: text, Appearance: appearance}}
}

func SubscribeChannel(target HookID, name string) Effect {
	return Effect{Kind: EffectSubscribeChannel, Target: target, Channel: &ChannelPayload{Name: name}}
}

func UnsubscribeChannel(target HookID, name string) Effect {
	return Effect{Kind: EffectUnsubscribeChannel, Target: target, Channel: &ChannelPayload{Name: name}}
}
