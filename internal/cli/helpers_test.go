package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/boltstore"
	"github.com/roach88/rehook/internal/config"
	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
	"github.com/roach88/rehook/internal/testutil"
)

// seedDB writes a database holding counter instance c-1 after two
// increments (three cycles) and returns its path.
func seedDB(t *testing.T, backend string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rehook.db")

	var st store.Backend
	if backend == config.BackendBolt {
		b, err := boltstore.Open(path)
		require.NoError(t, err)
		st = b
	} else {
		s, err := store.Open(path)
		require.NoError(t, err)
		st = s
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := host.New(st, demo.Engines(engine.WithLogger(quiet)),
		host.WithIDGenerator(testutil.NewIDs("c-1")),
		host.WithLogger(quiet))

	ctx := context.Background()
	id, _, err := r.Create(ctx, "counter", ir.Object{})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := r.Cycle(ctx, id, []ir.Event{ir.Interaction("counter/handler#0", nil)})
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())
	return path
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// rawResponse decodes a JSON CLIResponse keeping Data raw.
type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse[T any](t *testing.T, out string) (rawResponse, T) {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	var data T
	if len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return resp, data
}

func loadDefault(t *testing.T) *config.Config {
	t.Helper()
	return config.Default()
}
