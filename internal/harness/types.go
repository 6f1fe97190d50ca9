package harness

import (
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

// TraceEvent is an inbound event as recorded in the cycle log.
type TraceEvent struct {
	Kind    string `json:"kind"`
	Target  string `json:"target,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// TraceEffect is an emitted effect by kind and target. Effect ids are
// left out; they are covered by the replay assertion.
type TraceEffect struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// TraceState is a written hook state.
type TraceState struct {
	Kind  string   `json:"kind"`
	Load  string   `json:"load,omitempty"`
	Value ir.Value `json:"value"`
}

// CycleTrace is one committed cycle.
type CycleTrace struct {
	Seq      int64                 `json:"seq"`
	Events   []TraceEvent          `json:"events"`
	Set      map[string]TraceState `json:"set"`
	Removed  []string              `json:"removed"`
	Effects  []TraceEffect         `json:"effects"`
	Requeued []string              `json:"requeued"`
	Dropped  []string              `json:"dropped"`
	Errors   []string              `json:"errors"`
	Text     string                `json:"text"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every committed cycle, read back from the cycle log.
	Trace []CycleTrace `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the committed snapshot after the last step.
	State ir.Snapshot `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []CycleTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Effects flattens the effects of every traced cycle.
func (r *Result) Effects() []TraceEffect {
	var out []TraceEffect
	for _, c := range r.Trace {
		out = append(out, c.Effects...)
	}
	return out
}

func traceCycle(req ir.Request, resp *engine.Response) CycleTrace {
	c := CycleTrace{
		Seq:      req.Seq,
		Events:   make([]TraceEvent, 0, len(req.Events)),
		Set:      make(map[string]TraceState, len(resp.Delta.Set)),
		Removed:  make([]string, 0, len(resp.Delta.Removed)),
		Effects:  make([]TraceEffect, 0, len(resp.Effects)),
		Requeued: make([]string, 0, len(resp.Requeued)),
		Dropped:  make([]string, 0, len(resp.Dropped)),
		Errors:   make([]string, 0, len(resp.Errors)),
		Text:     resp.Tree.TextContent(),
	}
	for _, ev := range req.Events {
		c.Events = append(c.Events, TraceEvent{Kind: string(ev.Kind), Target: string(ev.Target), Channel: ev.Channel})
	}
	for id, st := range resp.Delta.Set {
		c.Set[string(id)] = TraceState{Kind: string(st.Kind), Load: string(st.Load), Value: st.Value}
	}
	for _, id := range resp.Delta.Removed {
		c.Removed = append(c.Removed, string(id))
	}
	for _, e := range resp.Effects {
		c.Effects = append(c.Effects, TraceEffect{Kind: string(e.Kind), Target: string(e.Target)})
	}
	for _, rq := range resp.Requeued {
		c.Requeued = append(c.Requeued, string(rq.HookID))
	}
	for _, d := range resp.Dropped {
		c.Dropped = append(c.Dropped, d.Reason)
	}
	for _, e := range resp.Errors {
		c.Errors = append(c.Errors, e.Code)
	}
	return c
}
