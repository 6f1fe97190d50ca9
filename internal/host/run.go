package host

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
)

// Run starts background processing and blocks until ctx is done: stored
// schedules are restored, requeued loads run on a bounded pool and timer
// ticks and loader completions are delivered as cycles.
//
// Run returns nil on cancellation. It must not be called twice.
func (r *Runner) Run(ctx context.Context) error {
	bg := &background{ctx: ctx, jobs: make(chan *loadJob, r.cfg.LoaderConcurrency)}
	r.bgMu.Lock()
	if r.bg != nil {
		r.bgMu.Unlock()
		return errors.New("runner already running")
	}
	r.bg = bg
	r.bgMu.Unlock()

	pool := new(errgroup.Group)
	pool.SetLimit(r.cfg.LoaderConcurrency)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for {
			select {
			case job := <-bg.jobs:
				pool.Go(func() error {
					r.runLoad(bg, job)
					return nil
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := r.Restore(ctx); err != nil {
		r.logger.Error("restore failed", "error", err)
	}
	r.logger.Info("runner started", "loader_concurrency", r.cfg.LoaderConcurrency)

	for {
		select {
		case <-ctx.Done():
			r.timers.stopAll()
			r.queue.Close()
			<-dispatched
			pool.Wait()
			r.logger.Info("runner stopped")
			return nil
		case <-r.queue.Wait():
			r.deliver(ctx)
		}
	}
}

// deliver drains the queue and runs one cycle per instance per batch,
// keeping each instance's events in arrival order.
func (r *Runner) deliver(ctx context.Context) {
	items := r.queue.DrainAll()
	if len(items) == 0 {
		return
	}
	var order []string
	byInst := make(map[string][]ir.Event)
	for _, d := range items {
		if _, ok := byInst[d.instance]; !ok {
			order = append(order, d.instance)
		}
		byInst[d.instance] = append(byInst[d.instance], d.event)
	}

	for _, id := range order {
		events := byInst[id]
		for len(events) > 0 {
			n := min(len(events), r.cfg.MaxBatch)
			if _, err := r.Cycle(ctx, id, events[:n]); err != nil {
				if errors.Is(err, store.ErrNotFound) || ctx.Err() != nil {
					r.logger.Debug("delivery dropped", "instance", id, "events", n, "error", err)
				} else {
					r.logger.Warn("delivery failed", "instance", id, "events", n, "error", err)
				}
			}
			events = events[n:]
		}
	}
}

func (r *Runner) runLoad(bg *background, job *loadJob) {
	defer r.loaders.end(job)
	ev, err := r.execLoader(bg.ctx, job)
	if err != nil {
		return
	}
	r.queue.Enqueue(delivery{instance: job.key.instance, event: ev})
}

// execLoader runs one loader under job.ctx. A timeout becomes a failed
// completion so the hook leaves loading; cancellation (superseded request,
// deleted instance, shutdown) and staleness produce no event.
func (r *Runner) execLoader(parent context.Context, job *loadJob) (ir.Event, error) {
	log := r.logger.With("instance", job.key.instance, "hook_id", job.rq.HookID, "request_id", job.rq.RequestID)

	ev, err := job.app.RunLoader(job.ctx, job.snap, job.props, job.rq)
	switch {
	case err == nil:
		return ev, nil
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		log.Warn("loader timed out")
		return timeoutCompletion(job.rq), nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug("loader cancelled")
	case errors.Is(err, engine.ErrStaleRequest), errors.Is(err, engine.ErrUnknownHook):
		log.Debug("loader skipped", "reason", err)
		r.metrics.RecordLoader(job.app.Name(), "stale", 0)
	default:
		log.Warn("loader failed", "error", err)
	}
	return ir.Event{}, err
}

func timeoutCompletion(rq ir.Requeue) ir.Event {
	return ir.Completion(rq.HookID, rq.RequestID, ir.Fail(ir.ErrorInfo{
		Message: "loader timed out",
		Code:    CodeLoaderTimeout,
	}))
}
