package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultMetricsPath, c.MetricsPath)
	assert.Equal(t, float64(DefaultEventsPerSecond), c.EventsPerSecond)
	assert.Equal(t, DefaultBurst, c.Burst)

	c = Config{MetricsPath: "/m", Burst: 3}.withDefaults()
	assert.Equal(t, "/m", c.MetricsPath)
	assert.Equal(t, 3, c.Burst)
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestHandler_MetricsPathConfigurable(t *testing.T) {
	f := newFixture(t, Config{MetricsPath: "/internal/metrics"})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/internal/metrics", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", nil).StatusCode)
}
