package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
	"github.com/roach88/rehook/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	runner   *host.Runner
	store    *store.Store
	instance string
	last     *engine.Response
	events   []ir.Event
	logger   *slog.Logger
}

// Run executes a scenario against the demo app it names.
//
// Each scenario runs in a fresh in-memory database for isolation.
func Run(scenario *Scenario) (*Result, error) {
	mode, err := engine.ParseIdentityMode(scenario.Identity)
	if err != nil {
		return nil, err
	}
	e, err := demo.Engine(scenario.App, engine.WithIdentityMode(mode), engine.WithLogger(discardLogger()))
	if err != nil {
		return nil, err
	}
	return RunEngine(scenario, e)
}

// RunEngine executes a scenario against e. scenario.App must name e.
func RunEngine(scenario *Scenario, e *engine.Engine) (*Result, error) {
	if e.Name() != scenario.App {
		return nil, fmt.Errorf("scenario %s targets app %q, engine is %q", scenario.Name, scenario.App, e.Name())
	}
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := discardLogger()
	h := &Harness{
		runner: host.New(st, []*engine.Engine{e},
			host.WithIDGenerator(testutil.NewIDs(scenario.Name)),
			host.WithLogger(logger)),
		store:  st,
		logger: logger,
	}

	ctx := context.Background()
	props, err := ir.FromAny(toStringMap(scenario.Props))
	if err != nil {
		return nil, fmt.Errorf("props: %w", err)
	}

	result := NewResult()
	h.instance, h.last, err = h.runner.Create(ctx, scenario.App, props.(ir.Object))
	if err != nil {
		return nil, fmt.Errorf("failed to mount %s: %w", scenario.App, err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if step.Expect != nil {
			for _, msg := range checkExpect(h.last, *step.Expect) {
				result.AddError(fmt.Sprintf("step %d: %s", i, msg))
			}
		}
		h.logger.Debug("step completed", "step", i, "seq", h.last.Seq)
	}

	if err := h.readTrace(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range h.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Settle:
		settled, err := h.runner.Settle(ctx, h.instance, h.last)
		if err != nil {
			return err
		}
		if len(settled) > 0 {
			h.last = settled[len(settled)-1]
		}
		h.events = nil
		return nil
	case step.Press != "":
		btn, ok := h.last.Tree.FindButton(step.Press)
		if !ok {
			return fmt.Errorf("button %q not rendered (text: %q)", step.Press, h.last.Tree.TextContent())
		}
		return h.cycle(ctx, []ir.Event{ir.Interaction(ir.HookID(btn.Handler), nil)})
	case step.Submit != nil:
		ev, err := h.submission(step.Submit)
		if err != nil {
			return err
		}
		return h.cycle(ctx, []ir.Event{ev})
	case step.Redeliver:
		if h.events == nil {
			return fmt.Errorf("redeliver: the previous step sent no events")
		}
		return h.cycle(ctx, h.events)
	}
	events := make([]ir.Event, 0, len(step.Events))
	for i, spec := range step.Events {
		ev, err := spec.event()
		if err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, ev)
	}
	return h.cycle(ctx, events)
}

func (h *Harness) cycle(ctx context.Context, events []ir.Event) error {
	resp, err := h.runner.Cycle(ctx, h.instance, events)
	if err != nil {
		return err
	}
	h.last = resp
	h.events = events
	return nil
}

// submission answers the last show-form effect of the previous response.
func (h *Harness) submission(values map[string]any) (ir.Event, error) {
	var form *ir.Effect
	for j := len(h.last.Effects) - 1; j >= 0; j-- {
		if h.last.Effects[j].Kind == ir.EffectShowForm {
			form = &h.last.Effects[j]
			break
		}
	}
	if form == nil || form.Form == nil {
		return ir.Event{}, fmt.Errorf("submit: the previous response shows no form")
	}
	v, err := ir.FromAny(values)
	if err != nil {
		return ir.Event{}, fmt.Errorf("submit: %w", err)
	}
	return ir.FormSubmission(form.Target, form.Form.FormID, v.(ir.Object)), nil
}

func (spec EventSpec) event() (ir.Event, error) {
	ev := ir.Event{
		Kind:    ir.EventKind(spec.Kind),
		Target:  ir.HookID(spec.Target),
		Channel: spec.Channel,
	}
	if spec.Payload != nil {
		v, err := ir.FromAny(spec.Payload)
		if err != nil {
			return ir.Event{}, fmt.Errorf("payload: %w", err)
		}
		ev.Payload = v
	}
	if spec.Visible != nil {
		ev = ir.Visibility(ev.Target, *spec.Visible)
	}
	return ev, nil
}

// readTrace rebuilds the trace from the stored cycle log.
func (h *Harness) readTrace(ctx context.Context, result *Result) error {
	entries, err := h.store.ReadCycles(ctx, h.instance)
	if err != nil {
		return fmt.Errorf("read cycle log: %w", err)
	}
	recs, err := host.Records(entries)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		result.Trace = append(result.Trace, traceCycle(rec.Request, rec.Response))
	}
	_, result.State, err = h.runner.State(ctx, h.instance)
	return err
}

// checkExpect compares a response against a step expectation.
func checkExpect(resp *engine.Response, want StepExpect) []string {
	var errs []string
	for id, raw := range want.Set {
		exp, err := ir.FromAny(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("set[%s]: %v", id, err))
			continue
		}
		got, ok := resp.Delta.Set[ir.HookID(id)]
		if !ok {
			errs = append(errs, fmt.Sprintf("expected %s in delta, got %v", id, setIDs(resp)))
			continue
		}
		if !ir.Equal(exp, got.Value) {
			errs = append(errs, fmt.Sprintf("%s: expected %s, got %s", id, canonical(exp), canonical(got.Value)))
		}
	}
	if want.Removed != nil {
		got := make([]string, len(resp.Delta.Removed))
		for i, id := range resp.Delta.Removed {
			got[i] = string(id)
		}
		sort.Strings(got)
		exp := slices.Clone(want.Removed)
		sort.Strings(exp)
		if !slices.Equal(exp, got) {
			errs = append(errs, fmt.Sprintf("removed: expected %v, got %v", exp, got))
		}
	}
	if want.Effects != nil {
		got := make([]EffectSpec, len(resp.Effects))
		for i, e := range resp.Effects {
			got[i] = EffectSpec{Kind: string(e.Kind), Target: string(e.Target)}
		}
		if !slices.Equal(*want.Effects, got) {
			errs = append(errs, fmt.Sprintf("effects: expected %v, got %v", *want.Effects, got))
		}
	}
	if want.Requeued != nil && *want.Requeued != len(resp.Requeued) {
		errs = append(errs, fmt.Sprintf("requeued: expected %d, got %d", *want.Requeued, len(resp.Requeued)))
	}
	if want.Dropped != nil {
		got := make([]string, len(resp.Dropped))
		for i, d := range resp.Dropped {
			got[i] = d.Reason
		}
		if !slices.Equal(want.Dropped, got) {
			errs = append(errs, fmt.Sprintf("dropped: expected %v, got %v", want.Dropped, got))
		}
	}
	if want.Errors != nil && *want.Errors != len(resp.Errors) {
		errs = append(errs, fmt.Sprintf("errors: expected %d, got %d (%v)", *want.Errors, len(resp.Errors), resp.Errors))
	}
	if want.Text != "" && want.Text != resp.Tree.TextContent() {
		errs = append(errs, fmt.Sprintf("text: expected %q, got %q", want.Text, resp.Tree.TextContent()))
	}
	sort.Strings(errs)
	return errs
}

func setIDs(resp *engine.Response) []ir.HookID {
	return resp.Delta.SetIDs()
}

func canonical(v ir.Value) string {
	s, err := ir.CanonicalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
