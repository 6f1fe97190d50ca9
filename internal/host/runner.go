package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/metric"
	"github.com/roach88/rehook/internal/store"
)

// CodeLoaderTimeout is the ErrorInfo code of a completion produced when a
// loader exceeds Config.LoaderTimeout.
const CodeLoaderTimeout = "LOADER_TIMEOUT"

var (
	// ErrUnknownApp is returned for an app name no engine is registered for.
	ErrUnknownApp = errors.New("unknown app")

	// ErrNotSettled is returned by Settle when loads are still requeued
	// after Config.MaxSettleRounds.
	ErrNotSettled = errors.New("instance did not settle")
)

// Config bounds the runner's background work.
type Config struct {
	// LoaderConcurrency caps loaders running at once across instances.
	LoaderConcurrency int
	// LoaderTimeout bounds one loader execution.
	LoaderTimeout time.Duration
	// MaxSettleRounds caps the load/cycle rounds Settle performs.
	MaxSettleRounds int
	// MaxBatch caps the queued events delivered in one cycle.
	MaxBatch int
}

// DefaultConfig returns the defaults used when no config file is given.
func DefaultConfig() Config {
	return Config{
		LoaderConcurrency: 8,
		LoaderTimeout:     10 * time.Second,
		MaxSettleRounds:   16,
		MaxBatch:          32,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LoaderConcurrency <= 0 {
		c.LoaderConcurrency = d.LoaderConcurrency
	}
	if c.LoaderTimeout <= 0 {
		c.LoaderTimeout = d.LoaderTimeout
	}
	if c.MaxSettleRounds <= 0 {
		c.MaxSettleRounds = d.MaxSettleRounds
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = d.MaxBatch
	}
	return c
}

// Runner drives instances: load snapshot, cycle, commit, apply effects.
//
// Cycles of one instance are serialized by a per-instance mutex; distinct
// instances run in parallel. Without Run, the runner is synchronous:
// loaders only execute through Settle and set-timer effects are not armed.
// Run adds the background side: timers, loaders and the delivery loop.
type Runner struct {
	apps    map[string]*engine.Engine
	store   store.Backend
	cfg     Config
	ids     IDGenerator
	logger  *slog.Logger
	metrics *metric.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	count atomic.Int64

	bgMu sync.RWMutex
	bg   *background

	queue   *eventQueue
	loaders *loaderSet
	timers  *timerSet
	subs    *subscriptions
	sinks   fanout
}

type background struct {
	ctx  context.Context
	jobs chan *loadJob
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets limits; zero fields keep their defaults.
func WithConfig(c Config) Option {
	return func(r *Runner) { r.cfg = c.withDefaults() }
}

// WithIDGenerator sets the instance id generator (UUIDv7 by default).
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records host metrics on m.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSink registers a sink for committed responses.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sinks.add(s) }
}

// New creates a runner over st serving the given engines, keyed by
// engine name.
func New(st store.Backend, apps []*engine.Engine, opts ...Option) *Runner {
	r := &Runner{
		apps:    make(map[string]*engine.Engine, len(apps)),
		store:   st,
		cfg:     DefaultConfig(),
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex),
		queue:   newEventQueue(),
		loaders: newLoaderSet(),
		subs:    newSubscriptions(),
	}
	for _, e := range apps {
		r.apps[e.Name()] = e
	}
	for _, opt := range opts {
		opt(r)
	}
	r.timers = newTimerSet(func(k timerKey) {
		r.queue.Enqueue(delivery{instance: k.instance, event: ir.TimerFire(k.target)})
	}, r.metrics)
	return r
}

// AddSink registers a sink after construction.
func (r *Runner) AddSink(s Sink) { r.sinks.add(s) }

// Store returns the backing store.
func (r *Runner) Store() store.Backend { return r.store }

// Engine returns the engine registered for app.
func (r *Runner) Engine(app string) (*engine.Engine, bool) {
	e, ok := r.apps[app]
	return e, ok
}

// Apps returns the registered app names, sorted.
func (r *Runner) Apps() []string {
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) lock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *Runner) background() *background {
	r.bgMu.RLock()
	defer r.bgMu.RUnlock()
	return r.bg
}

// Create registers a new instance of app and runs its first cycle.
func (r *Runner) Create(ctx context.Context, app string, props ir.Object) (string, *engine.Response, error) {
	if _, ok := r.apps[app]; !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownApp, app)
	}
	id := r.ids.Generate()
	if err := r.store.CreateInstance(ctx, store.Instance{ID: id, App: app, Props: props}); err != nil {
		return "", nil, err
	}
	r.metrics.SetInstances(int(r.count.Add(1)))
	r.logger.Info("instance created", "instance", id, "app", app)

	resp, err := r.Cycle(ctx, id, nil)
	if err != nil {
		return id, nil, err
	}
	return id, resp, nil
}

// Cycle runs one cycle of instance id with events and commits it.
func (r *Runner) Cycle(ctx context.Context, id string, events []ir.Event) (*engine.Response, error) {
	l := r.lock(id)
	l.Lock()
	defer l.Unlock()

	inst, err := r.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	app, ok := r.apps[inst.App]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w: %q", id, ErrUnknownApp, inst.App)
	}
	snap, err := r.store.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	req := ir.Request{Seq: inst.Seq + 1, Props: inst.Props, PriorState: snap, Events: events}
	resp, err := app.Cycle(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("instance %s seq %d: %w", id, req.Seq, err)
	}

	next := snap.Merge(resp.Delta)
	digest, err := ir.StateDigest(next)
	if err != nil {
		return nil, fmt.Errorf("instance %s seq %d: digest: %w", id, req.Seq, err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("instance %s seq %d: encode response: %w", id, req.Seq, err)
	}
	entry := store.CycleEntry{Seq: req.Seq, Request: req, Response: raw, StateDigest: digest}
	if err := r.store.Commit(ctx, id, resp.Delta, entry); err != nil {
		return nil, err
	}

	r.apply(inst, app, next, resp)
	return resp, nil
}

// apply turns a committed response into host work.
func (r *Runner) apply(inst store.Instance, app *engine.Engine, next ir.Snapshot, resp *engine.Response) {
	bg := r.background()

	for _, id := range resp.Delta.Removed {
		r.loaders.cancel(loadKey{instance: inst.ID, hook: id})
	}
	for _, eff := range resp.Effects {
		k := timerKey{instance: inst.ID, target: eff.Target}
		switch eff.Kind {
		case ir.EffectSetTimer:
			if bg != nil {
				r.timers.arm(k, time.Duration(eff.Timer.DurationMS)*time.Millisecond)
			}
		case ir.EffectClearTimer:
			r.timers.clear(k)
		case ir.EffectSubscribeChannel:
			r.subs.add(eff.Channel.Name, inst.ID, eff.Target)
		case ir.EffectUnsubscribeChannel:
			r.subs.remove(eff.Channel.Name, inst.ID, eff.Target)
		}
	}
	if bg != nil {
		for _, rq := range resp.Requeued {
			r.startLoad(bg, inst, app, next, rq)
		}
	}
	for _, herr := range resp.Errors {
		r.logger.Warn("handler failed", "instance", inst.ID, "seq", resp.Seq, "code", herr.Code, "error", herr.Message)
	}
	r.sinks.Publish(inst.ID, resp)
}

func (r *Runner) startLoad(bg *background, inst store.Instance, app *engine.Engine, snap ir.Snapshot, rq ir.Requeue) {
	job := &loadJob{
		key:   loadKey{instance: inst.ID, hook: rq.HookID},
		app:   app,
		snap:  snap,
		props: inst.Props,
		rq:    rq,
	}
	if !r.loaders.begin(bg.ctx, r.cfg.LoaderTimeout, job) {
		return
	}
	select {
	case bg.jobs <- job:
	case <-bg.ctx.Done():
		r.loaders.end(job)
	}
}

// State returns the instance record and its current snapshot.
func (r *Runner) State(ctx context.Context, id string) (store.Instance, ir.Snapshot, error) {
	inst, err := r.store.GetInstance(ctx, id)
	if err != nil {
		return store.Instance{}, nil, err
	}
	snap, err := r.store.LoadSnapshot(ctx, id)
	if err != nil {
		return store.Instance{}, nil, err
	}
	return inst, snap, nil
}

// Delete removes the instance and stops everything it owns.
func (r *Runner) Delete(ctx context.Context, id string) error {
	l := r.lock(id)
	l.Lock()
	defer l.Unlock()

	r.loaders.cancelInstance(id)
	r.timers.clearInstance(id)
	r.subs.removeInstance(id)
	if err := r.store.DeleteInstance(ctx, id); err != nil {
		return err
	}
	r.metrics.SetInstances(int(r.count.Add(-1)))

	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
	r.logger.Info("instance deleted", "instance", id)
	return nil
}

// Broadcast delivers payload to every instance subscribed to channel, one
// cycle per instance, and returns the instances reached in id order.
func (r *Runner) Broadcast(ctx context.Context, channel string, payload ir.Value) ([]string, error) {
	ids := r.subs.subscribers(channel)
	var errs []error
	for _, id := range ids {
		if _, err := r.Cycle(ctx, id, []ir.Event{ir.ChannelMessage(channel, payload)}); err != nil {
			errs = append(errs, fmt.Errorf("broadcast to %s: %w", id, err))
		}
	}
	return ids, errors.Join(errs...)
}

// Restore rebuilds in-memory schedules from stored snapshots: channel
// subscriptions always, timers and in-flight loads only while Run is active.
func (r *Runner) Restore(ctx context.Context) error {
	insts, err := r.store.ListInstances(ctx, "")
	if err != nil {
		return err
	}
	r.count.Store(int64(len(insts)))
	r.metrics.SetInstances(len(insts))
	bg := r.background()

	for _, inst := range insts {
		app, ok := r.apps[inst.App]
		if !ok {
			r.logger.Warn("instance of unknown app skipped", "instance", inst.ID, "app", inst.App)
			continue
		}
		snap, err := r.store.LoadSnapshot(ctx, inst.ID)
		if err != nil {
			return err
		}
		p := engine.PendingWork(snap)
		for _, ch := range p.Channels {
			r.subs.add(ch.Name, inst.ID, ch.Target)
		}
		if bg == nil {
			continue
		}
		for _, t := range p.Timers {
			r.timers.arm(timerKey{instance: inst.ID, target: t.Target}, time.Duration(t.DurationMS)*time.Millisecond)
		}
		for _, rq := range p.Requeued {
			r.startLoad(bg, inst, app, snap, rq)
		}
	}
	r.logger.Debug("instances restored", "count", len(insts))
	return nil
}
