package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

const counterScenario = `
name: counter_once
description: "one increment"
app: counter
steps:
  - press: Increment
assertions:
  - type: final_state
    hook: "counter/state#0"
    value: 1
`

func TestTest_HarnessScenariosPass(t *testing.T) {
	out, _, err := execute(t, "", "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ counter_increments")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTest_JSONReportsGoldenMatch(t *testing.T) {
	out, _, err := execute(t, "", "test", scenariosDir, "--format", "json", "--filter", "counter*")
	require.NoError(t, err)

	resp, res := decodeResponse[TestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "counter_increments", res.Scenarios[0].Name)
	assert.Equal(t, "match", res.Scenarios[0].Golden)
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	bad := `
name: counter_wrong
description: "expects the wrong value"
app: counter
steps:
  - press: Increment
assertions:
  - type: final_state
    hook: "counter/state#0"
    value: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte(counterScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(bad), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, _, err := execute(t, "", "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, res := decodeResponse[TestResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, "broken.yaml", res.Scenarios[0].Name)
	assert.Contains(t, res.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestTest_UpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "once.yaml"), []byte(counterScenario), 0o644))

	out, _, err := execute(t, "", "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "counter_once (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "once.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario":"counter_once"`)

	_, res := func() (rawResponse, TestResult) {
		out, _, err := execute(t, "", "test", dir, "--format", "json")
		require.NoError(t, err)
		return decodeResponse[TestResult](t, out)
	}()
	assert.Equal(t, "match", res.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "once.golden"), []byte(`{"trace":[]}`), 0o644))
	out, _, err = execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_NoScenarios(t *testing.T) {
	out, _, err := execute(t, "", "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_CommandErrors(t *testing.T) {
	_, _, err := execute(t, "", "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "", "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "golden", "b.golden"), goldenFilePath(filepath.Join("a", "b.yaml")))
}
