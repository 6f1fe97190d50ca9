package host

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
	"github.com/roach88/rehook/internal/ui"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newRunner serves the demo apps plus extra over a fresh SQLite store.
func newRunner(t *testing.T, st store.Backend, extra []*engine.Engine, opts ...Option) *Runner {
	t.Helper()
	apps := append(demo.Engines(engine.WithLogger(quietLogger())), extra...)
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(st, apps, opts...)
}

// startRunner runs r in the background until the test ends.
func startRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return r.background() != nil }, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("runner did not stop")
		}
	})
}

func stateValue(t *testing.T, r *Runner, id string, hook ir.HookID) (ir.HookState, bool) {
	t.Helper()
	_, snap, err := r.State(context.Background(), id)
	require.NoError(t, err)
	st, ok := snap[hook]
	return st, ok
}

// pollApp ticks every 10ms while mounted.
func pollApp() *engine.Engine {
	return engine.New("poll", func(rc *engine.RenderContext, _ ir.Object) ui.Node {
		ticks := engine.UseState(rc, ir.Int(0))
		iv := engine.UseInterval(rc, func() error {
			return ticks.Update(func(v ir.Value) ir.Value {
				n, _ := ir.AsInt(v)
				return ir.Int(n + 1)
			})
		}, 10*time.Millisecond)
		_ = iv.Start()
		return ui.Text(strconv.FormatInt(ticks.Int(), 10))
	}, engine.WithLogger(quietLogger()))
}

// fetchApp loads q*10 once q > 0. The load for q == 1 blocks until
// cancelled and reports the cancellation on cancelled.
func fetchApp(cancelled chan<- int64) *engine.Engine {
	return engine.New("fetch", func(rc *engine.RenderContext, _ ir.Object) ui.Node {
		q := engine.UseState(rc, ir.Int(0))
		n := q.Int()
		engine.UseAsync(rc, func(ctx context.Context) (ir.Value, error) {
			if n == 1 {
				<-ctx.Done()
				cancelled <- n
				return nil, ctx.Err()
			}
			return ir.Int(n * 10), nil
		}, engine.AsyncOptions{DependsOn: ir.Int(n), Disabled: n == 0})
		bump := rc.Handler(func(ir.Event) error {
			return q.Update(func(v ir.Value) ir.Value {
				i, _ := ir.AsInt(v)
				return ir.Int(i + 1)
			})
		})
		return ui.Button("bump", bump)
	}, engine.WithLogger(quietLogger()))
}

// slowApp's loader never returns on its own.
func slowApp() *engine.Engine {
	return engine.New("slow", func(rc *engine.RenderContext, _ ir.Object) ui.Node {
		engine.UseAsync(rc, func(ctx context.Context) (ir.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, engine.AsyncOptions{})
		return ui.Text("slow")
	}, engine.WithLogger(quietLogger()))
}

// chainApp requeues forever: every completion bumps the dependency.
func chainApp() *engine.Engine {
	return engine.New("chain", func(rc *engine.RenderContext, _ ir.Object) ui.Node {
		n := engine.UseState(rc, ir.Int(0))
		engine.UseAsync(rc, func(context.Context) (ir.Value, error) {
			return ir.Null{}, nil
		}, engine.AsyncOptions{
			DependsOn: n.Get(),
			Finally: func(ir.Result) error {
				return n.Set(ir.Int(n.Int() + 1))
			},
		})
		return ui.Text("chain")
	}, engine.WithLogger(quietLogger()))
}
