package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := execute(t, "", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Config valid: (defaults)")
}

func TestValidate_ConfigFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rehook.cue", `
server: addr: ":9000"
store: backend: "bolt"
engine: identity: "positional"
`)
	out, _, err := execute(t, "", "validate", path, "--format", "json")
	require.NoError(t, err)

	resp, res := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, res.Valid)
	assert.Equal(t, path, res.Config)
}

func TestValidate_InvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rehook.cue", "store: {\n\tbackend: \"postgres\"\n}\n")

	out, _, err := execute(t, "", "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, res := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeConfigInvalid, resp.Error.Code)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "store.backend", res.Errors[0].Field)
	assert.Positive(t, res.Errors[0].Line)
}

func TestValidate_InvalidConfigText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rehook.cue", "host: max_batch: \"lots\"\n")

	out, _, err := execute(t, "", "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E_CONFIG: host.max_batch")
}

func TestValidate_MissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "", "validate", "/nonexistent/rehook.cue", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidate_Scenarios(t *testing.T) {
	t.Run("harness testdata", func(t *testing.T) {
		out, _, err := execute(t, "", "validate", "--scenarios", scenariosDir, "--format", "json")
		require.NoError(t, err)
		_, res := decodeResponse[ValidationResult](t, out)
		assert.True(t, res.Valid)
		assert.Equal(t, 6, res.Scenarios)
	})

	t.Run("broken files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", counterScenario)
		writeFile(t, dir, "b.yaml", "name: x\ndescription: y\napp: counter\nsteps: [{}]\nassertions: [{type: replay}]\n")
		writeFile(t, dir, "c.yaml", "name: x\ndescription: y\napp: calculator\nassertions: [{type: replay}]\n")

		out, _, err := execute(t, "", "validate", "--scenarios", dir, "--format", "json")
		require.Error(t, err)
		_, res := decodeResponse[ValidationResult](t, out)
		assert.Equal(t, 3, res.Scenarios)
		require.Len(t, res.Errors, 2)
		assert.Equal(t, CodeScenarioInvalid, res.Errors[0].Code)
		assert.Equal(t, CodeUnknownApp, res.Errors[1].Code)
		assert.Equal(t, "app", res.Errors[1].Field)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, _, err := execute(t, "", "validate", "--scenarios", "/nonexistent/dir")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
