package engine

import (
	"errors"
	"log/slog"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/metric"
	"github.com/roach88/rehook/internal/ui"
)

// Engine runs cycles for one root component.
//
// An Engine holds only configuration. Every cycle builds its own
// RenderContext from the request, so one Engine may serve any number of
// instances concurrently; the host serializes cycles per instance.
type Engine struct {
	name    string
	root    Component
	mode    IdentityMode
	budget  Budget
	metrics *metric.Metrics
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIdentityMode selects how positional hook divergence is handled.
//
// Default: IdentityStrict.
func WithIdentityMode(m IdentityMode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithBudget sets per-cycle limits. Zero fields keep their defaults.
func WithBudget(b Budget) Option {
	return func(e *Engine) { e.budget = b.withDefaults() }
}

// WithMetrics records cycle metrics. A nil *Metrics disables recording.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger; cycles log with app and seq attached.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine for root. name is the root component path segment
// and the app label in logs and metrics; it must not contain any of the
// reserved id characters.
func New(name string, root Component, opts ...Option) *Engine {
	e := &Engine{
		name:   name,
		root:   root,
		mode:   IdentityStrict,
		budget: DefaultBudget(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the app name.
func (e *Engine) Name() string { return e.name }

// Mode returns the identity mode.
func (e *Engine) Mode() IdentityMode { return e.mode }

// Response is the outcome of one cycle.
type Response struct {
	Seq      int64          `json:"seq"`
	Tree     ui.Node        `json:"tree"`
	Delta    ir.Delta       `json:"delta"`
	Effects  []ir.Effect    `json:"effects"`
	Requeued []ir.Requeue   `json:"requeued"`
	Errors   []ir.ErrorInfo `json:"errors,omitempty"`
	Dropped  []Drop         `json:"dropped,omitempty"`

	handlerErrs []error
}

// Err joins the handler failures of the cycle, or returns nil.
func (r *Response) Err() error {
	if r == nil || len(r.handlerErrs) == 0 {
		return nil
	}
	return errors.Join(r.handlerErrs...)
}

// HasEffect reports whether the response carries an effect of kind for
// target.
func (r *Response) HasEffect(kind ir.EffectKind, target ir.HookID) bool {
	for _, e := range r.Effects {
		if e.Kind == kind && e.Target == target {
			return true
		}
	}
	return false
}
