package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/metric"
	"github.com/roach88/rehook/internal/store"
	"github.com/roach88/rehook/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	runner *host.Runner
	server *Server
	http   *httptest.Server
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config, ids ...string) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, reg, err := metric.NewRegistered()
	require.NoError(t, err)

	opts := []host.Option{host.WithLogger(quietLogger()), host.WithMetrics(m)}
	if len(ids) > 0 {
		opts = append(opts, host.WithIDGenerator(testutil.NewIDs(ids...)))
	}
	r := host.New(st, demo.Engines(engine.WithLogger(quietLogger()), engine.WithMetrics(m)), opts...)
	s := New(r, WithConfig(cfg), WithGatherer(reg), WithLogger(quietLogger()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{runner: r, server: s, http: ts, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
