package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

func TestRun_TestdataScenarios(t *testing.T) {
	files, err := ScenarioFiles("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			require.NotEmpty(t, result.Trace)
			assert.Equal(t, int64(1), result.Trace[0].Seq, "mount cycle comes first")
		})
	}
}

func TestRun_TraceFollowsCycleLog(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/counter_increments.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Trace, 3)
	for i, c := range result.Trace {
		assert.Equal(t, int64(i+1), c.Seq)
	}
	assert.Empty(t, result.Trace[0].Events)
	require.Len(t, result.Trace[1].Events, 1)
	assert.Equal(t, string(ir.EventUserInteraction), result.Trace[1].Events[0].Kind)
	assert.Equal(t, "counter/handler#0", result.Trace[1].Events[0].Target)
	assert.Equal(t, ir.Int(0), result.State["counter/state#0"].Value)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	src := `
name: wrong_expectations
description: "every expectation is off by one"
app: counter
steps:
  - press: Increment
    expect:
      set: { "counter/state#0": 2 }
      requeued: 1
      text: "2 Increment Reset"
assertions:
  - type: final_state
    hook: "counter/state#0"
    value: 5
  - type: hook_absent
    hook: "counter/state#0"
  - type: effect_count
    kind: set-timer
    count: 1
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	joined := ""
	for _, e := range result.Errors {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "step 0: counter/state#0: expected 2, got 1")
	assert.Contains(t, joined, "step 0: requeued: expected 1, got 0")
	assert.Contains(t, joined, `step 0: text: expected "2 Increment Reset"`)
	assert.Contains(t, joined, "assertion 0:")
	assert.Contains(t, joined, "assertion 1:")
	assert.Contains(t, joined, "assertion 2:")
}

func TestRun_MissingButtonFailsStep(t *testing.T) {
	src := `
name: missing_button
description: "pressing a button that is not rendered"
app: counter
steps:
  - press: Decrement
assertions:
  - type: replay
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step 0: button "Decrement" not rendered`)
}

func TestRun_RedeliverNeedsEvents(t *testing.T) {
	src := `
name: redeliver_first
description: "redeliver right after mount"
app: counter
steps:
  - redeliver: true
assertions:
  - type: replay
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sent no events")
}

func TestRun_SubmitNeedsForm(t *testing.T) {
	src := `
name: submit_without_form
description: "submit when no form is open"
app: survey
steps:
  - submit: { name: Ada }
assertions:
  - type: replay
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shows no form")
}

func TestRun_UnknownApp(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: nope
description: "unknown app"
app: calculator
assertions:
  - type: replay
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calculator")
}

func TestRunEngine_AppMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	e, err := demo.Engine("list", engine.WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = RunEngine(s, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `engine is "list"`)
}

func TestEffectOrder_Subsequence(t *testing.T) {
	trace := []CycleTrace{
		{Seq: 1, Effects: []TraceEffect{{Kind: "mount-surface"}, {Kind: "set-timer"}}},
		{Seq: 2, Effects: []TraceEffect{{Kind: "post-message"}, {Kind: "clear-timer"}}},
	}
	require.NoError(t, assertEffectOrder(trace, Assertion{Type: AssertEffectOrder, Kinds: []string{"mount-surface", "clear-timer"}}))
	require.Error(t, assertEffectOrder(trace, Assertion{Type: AssertEffectOrder, Kinds: []string{"clear-timer", "set-timer"}}))
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertText,
		Expected: `"1"`,
		Actual:   `"0"`,
		Trace:    []CycleTrace{{Seq: 1, Text: "0"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: text")
	assert.Contains(t, msg, `Expected: "1"`)
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, `[1]`)
}
