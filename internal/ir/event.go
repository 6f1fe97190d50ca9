package ir

import (
	"encoding/json"
	"fmt"
)

// EventKind is the closed set of inbound events.
type EventKind string

const (
	EventUserInteraction   EventKind = "user-interaction"
	EventTimerFire         EventKind = "timer-fire"
	EventAsyncCompletion   EventKind = "async-completion"
	EventSurfaceMessage    EventKind = "surface-message"
	EventSurfaceVisibility EventKind = "surface-visibility-change"
	EventFormSubmission    EventKind = "form-submission"
	EventChannelMessage    EventKind = "channel-message"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventUserInteraction, EventTimerFire, EventAsyncCompletion, EventSurfaceMessage,
		EventSurfaceVisibility, EventFormSubmission, EventChannelMessage:
		return true
	}
	return false
}

// Event is one inbound occurrence routed to a hook.
//
// Target is the hook id (or handler id for user interactions). Channel
// messages carry Channel instead and reach every subscriber.
type Event struct {
	Kind      EventKind  `json:"kind"`
	Target    HookID     `json:"target,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	FormID    string     `json:"form_id,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Payload   Value      `json:"payload,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// UnmarshalJSON decodes Payload as a sealed Value.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	v, err := decodeOptionalValue(aux.Payload)
	if err != nil {
		return fmt.Errorf("event payload: %w", err)
	}
	e.Payload = v
	return nil
}

// decodeOptionalValue returns nil for an absent field.
func decodeOptionalValue(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return UnmarshalValue(raw)
}

// Interaction builds a user-interaction event for a handler id.
func Interaction(handler HookID, payload Value) Event {
	return Event{Kind: EventUserInteraction, Target: handler, Payload: payload}
}

// TimerFire builds a timer-fire event.
func TimerFire(target HookID) Event {
	return Event{Kind: EventTimerFire, Target: target}
}

// Completion builds an async-completion event from a loader result.
func Completion(target HookID, requestID string, r Result) Event {
	ev := Event{Kind: EventAsyncCompletion, Target: target, RequestID: requestID}
	if v, errInfo := r.Unpack(); errInfo != nil {
		ev.Error = errInfo
	} else {
		ev.Payload = v
	}
	return ev
}

// SurfaceMessage builds a surface-message event.
func SurfaceMessage(target HookID, payload Value) Event {
	return Event{Kind: EventSurfaceMessage, Target: target, Payload: payload}
}

// Visibility builds a surface-visibility-change event.
func Visibility(target HookID, visible bool) Event {
	return Event{Kind: EventSurfaceVisibility, Target: target, Payload: Object{"visible": Bool(visible)}}
}

// FormSubmission builds a form-submission event.
func FormSubmission(target HookID, formID string, values Object) Event {
	return Event{Kind: EventFormSubmission, Target: target, FormID: formID, Payload: values}
}

// ChannelMessage builds a broadcast for every subscriber of channel.
func ChannelMessage(channel string, payload Value) Event {
	return Event{Kind: EventChannelMessage, Channel: channel, Payload: payload}
}

// Result reconstructs the loader outcome carried by an async completion.
func (e Event) Result() Result {
	if e.Error != nil {
		return Fail(*e.Error)
	}
	if e.Payload == nil {
		return Ok(Null{})
	}
	return Ok(e.Payload)
}

// Visible reads the flag of a visibility-change event. Missing means false.
func (e Event) Visible() bool {
	obj, ok := e.Payload.(Object)
	if !ok {
		return false
	}
	b, _ := AsBool(obj.Get("visible"))
	return b
}
