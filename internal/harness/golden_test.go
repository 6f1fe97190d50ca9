package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_CounterIncrements(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/counter_increments.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	files, err := ScenarioFiles("testdata/scenarios")
	require.NoError(t, err)

	for _, path := range files {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		first, err := Run(s)
		require.NoError(t, err)
		second, err := Run(s)
		require.NoError(t, err)

		a, err := MarshalTrace(s, first)
		require.NoError(t, err)
		b, err := MarshalTrace(s, second)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "trace of %s differs between runs", s.Name)
	}
}

func TestMarshalTrace_OmitsEmptyOptionalFields(t *testing.T) {
	s := &Scenario{Name: "n", App: "counter"}
	result := NewResult()
	result.Trace = []CycleTrace{traceCycleFixture()}

	data, err := MarshalTrace(s, result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"app": "counter",
		"scenario": "n",
		"trace": [{
			"seq": 1,
			"events": [{"kind": "channel-message", "channel": "news"}],
			"set": {},
			"removed": [],
			"effects": [],
			"requeued": [],
			"dropped": ["no_subscribers"],
			"errors": [],
			"text": ""
		}]
	}`, string(data))
}

func traceCycleFixture() CycleTrace {
	return CycleTrace{
		Seq:      1,
		Events:   []TraceEvent{{Kind: "channel-message", Channel: "news"}},
		Set:      map[string]TraceState{},
		Removed:  []string{},
		Effects:  []TraceEffect{},
		Requeued: []string{},
		Dropped:  []string{"no_subscribers"},
		Errors:   []string{},
	}
}
