package host

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

// Settle runs the loads requeued by resp in the foreground and feeds their
// completions back as cycles until nothing is requeued. It returns the
// responses of the cycles it ran, in order.
//
// Settle is for synchronous hosts (CLI, harness, stdio). It runs the loads
// of one round concurrently, bounded by Config.LoaderConcurrency, and
// delivers the completions in requeue order so the result is
// deterministic.
func (r *Runner) Settle(ctx context.Context, id string, resp *engine.Response) ([]*engine.Response, error) {
	var out []*engine.Response
	for round := 0; len(resp.Requeued) > 0; round++ {
		if round >= r.cfg.MaxSettleRounds {
			return out, fmt.Errorf("instance %s: %w after %d rounds", id, ErrNotSettled, round)
		}
		events, err := r.loadRound(ctx, id, resp.Requeued)
		if err != nil {
			return out, err
		}
		if len(events) == 0 {
			break
		}
		resp, err = r.Cycle(ctx, id, events)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (r *Runner) loadRound(ctx context.Context, id string, requeued []ir.Requeue) ([]ir.Event, error) {
	inst, snap, err := r.State(ctx, id)
	if err != nil {
		return nil, err
	}
	app, ok := r.apps[inst.App]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w: %q", id, ErrUnknownApp, inst.App)
	}

	results := make([]*ir.Event, len(requeued))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.LoaderConcurrency)
	for i, rq := range requeued {
		g.Go(func() error {
			job := &loadJob{
				key:   loadKey{instance: id, hook: rq.HookID},
				app:   app,
				snap:  snap,
				props: inst.Props,
				rq:    rq,
			}
			var cancel context.CancelFunc
			job.ctx, cancel = context.WithTimeout(gctx, r.cfg.LoaderTimeout)
			defer cancel()

			ev, err := r.execLoader(gctx, job)
			switch {
			case err == nil:
				results[i] = &ev
				return nil
			case errors.Is(err, engine.ErrStaleRequest), errors.Is(err, engine.ErrUnknownHook):
				return nil
			default:
				return fmt.Errorf("load %s: %w", rq.HookID, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := make([]ir.Event, 0, len(results))
	for _, ev := range results {
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}
