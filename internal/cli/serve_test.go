package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for a command goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var listenLine = regexp.MustCompile(`Listening on (http://\S+)`)

func TestServe_ServesUntilCancelled(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rehook.db")
	out := &syncBuffer{}

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--db", db})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var base string
	require.Eventually(t, func() bool {
		m := listenLine.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		base = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/v1/apps/counter/instances", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "rehook_engine_cycles_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_ListenError(t *testing.T) {
	_, _, err := execute(t, "", "serve", "--addr", "256.0.0.1:bad", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}

type rwc struct {
	io.ReadCloser
	io.WriteCloser
}

func (p rwc) Close() error {
	p.ReadCloser.Close()
	return p.WriteCloser.Close()
}

func TestStdio_AnswersUntilStdinCloses(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rehook.db")
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	cmd := NewRootCommand()
	cmd.SetIn(serverIn)
	cmd.SetOut(serverOut)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"stdio", "--db", db})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	client := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(rwc{clientIn, clientOut}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) { return nil, nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var apps json.RawMessage
	require.NoError(t, client.Call(ctx, "apps", nil, &apps))
	assert.Contains(t, string(apps), "counter")

	clientOut.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stdio did not stop")
	}
	client.Close()
}
