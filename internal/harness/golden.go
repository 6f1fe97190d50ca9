package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rehook/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	App      string       `json:"app"`
	Trace    []CycleTrace `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. ir.MarshalCanonical only handles IR values and
// primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	cycles := make([]any, len(s.Trace))
	for i, c := range s.Trace {
		set := make(map[string]any, len(c.Set))
		for id, st := range c.Set {
			entry := map[string]any{"kind": st.Kind, "value": st.Value}
			if st.Load != "" {
				entry["load"] = st.Load
			}
			set[id] = entry
		}
		events := make([]any, len(c.Events))
		for j, ev := range c.Events {
			m := map[string]any{"kind": ev.Kind}
			if ev.Target != "" {
				m["target"] = ev.Target
			}
			if ev.Channel != "" {
				m["channel"] = ev.Channel
			}
			events[j] = m
		}
		effects := make([]any, len(c.Effects))
		for j, e := range c.Effects {
			effects[j] = map[string]any{"kind": e.Kind, "target": e.Target}
		}
		cycles[i] = map[string]any{
			"seq":      c.Seq,
			"events":   events,
			"set":      set,
			"removed":  stringList(c.Removed),
			"effects":  effects,
			"requeued": stringList(c.Requeued),
			"dropped":  stringList(c.Dropped),
			"errors":   stringList(c.Errors),
			"text":     c.Text,
		}
	}
	return map[string]any{
		"scenario": s.Scenario,
		"app":      s.App,
		"trace":    cycles,
	}
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snap := TraceSnapshot{Scenario: scenario.Name, App: scenario.App, Trace: result.Trace}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// GoldenDir holds golden traces, next to the scenario files as
// `rehook test` expects them.
const GoldenDir = "testdata/scenarios/golden"

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in GoldenDir/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
