package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/config"
	"github.com/roach88/rehook/internal/store"
)

func TestReplay_Deterministic(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			db := seedDB(t, backend)

			out, _, err := execute(t, "", "replay", "--db", db, "--backend", backend, "--format", "json")
			require.NoError(t, err)

			resp, res := decodeResponse[ReplayResult](t, out)
			assert.Equal(t, "ok", resp.Status)
			assert.True(t, res.AllDeterministic)
			require.Len(t, res.Instances, 1)
			assert.Equal(t, "c-1", res.Instances[0].Instance)
			assert.Equal(t, 3, res.Instances[0].Cycles)
			assert.NotEmpty(t, res.Instances[0].StateDigest)
		})
	}
}

func TestReplay_Text(t *testing.T) {
	db := seedDB(t, config.BackendSQLite)

	out, _, err := execute(t, "", "replay", "--db", db, "--instance", "c-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 instance(s)")
	assert.Contains(t, out, "✓ c-1 (counter): 3 cycles")
	assert.Contains(t, out, "All instances verified deterministic")
}

func TestReplay_DetectsTamperedLog(t *testing.T) {
	db := seedDB(t, config.BackendSQLite)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(context.Background(),
		`UPDATE cycles SET response = replace(response, '"value":1', '"value":7') WHERE instance_id = 'c-1' AND seq = 2`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, "", "replay", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, res := decodeResponse[ReplayResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeReplay, resp.Error.Code)
	assert.False(t, res.AllDeterministic)
	require.Len(t, res.Instances, 1)
	assert.Equal(t, int64(2), res.Instances[0].Seq)
	assert.NotEmpty(t, res.Instances[0].Field)
	assert.NotEmpty(t, res.Instances[0].Diff)
}

func TestReplay_Filters(t *testing.T) {
	db := seedDB(t, config.BackendSQLite)

	out, _, err := execute(t, "", "replay", "--db", db, "--app", "ticker")
	require.NoError(t, err)
	assert.Contains(t, out, "No instances found in database.")

	_, _, err = execute(t, "", "replay", "--db", db, "--instance", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
