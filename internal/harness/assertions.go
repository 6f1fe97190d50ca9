package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rehook/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []CycleTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, c := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] events=%v effects=%v text=%q\n", c.Seq, c.Events, c.Effects, c.Text)
		}
	}
	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		case AssertHookAbsent:
			err = assertHookAbsent(result.State, a)
		case AssertEffectCount:
			err = assertEffectCount(result.Trace, a)
		case AssertEffectOrder:
			err = assertEffectOrder(result.Trace, a)
		case AssertText:
			err = assertText(result.Trace, a)
		case AssertReplay:
			err = h.assertReplay(ctx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

// assertFinalState checks a hook's committed value and load state.
func assertFinalState(snap ir.Snapshot, a Assertion) error {
	st, ok := snap[ir.HookID(a.Hook)]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("hook %s in state", a.Hook),
			Actual:   fmt.Sprintf("not found among %v", snap.IDs()),
		}
	}
	if a.Load != "" && string(st.Load) != a.Load {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s load %s", a.Hook, a.Load),
			Actual:   string(st.Load),
		}
	}
	if a.Value == nil {
		return nil
	}
	want, err := ir.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if !ir.Equal(want, st.Value) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Hook, canonical(want)),
			Actual:   canonical(st.Value),
		}
	}
	return nil
}

// assertHookAbsent checks that a hook is not in the committed state.
func assertHookAbsent(snap ir.Snapshot, a Assertion) error {
	if st, ok := snap[ir.HookID(a.Hook)]; ok {
		return &AssertionError{
			Type:     AssertHookAbsent,
			Expected: fmt.Sprintf("%s pruned", a.Hook),
			Actual:   fmt.Sprintf("present as %s = %s", st.Kind, canonical(st.Value)),
		}
	}
	return nil
}

// assertEffectCount counts effects of a kind, optionally for one target.
func assertEffectCount(trace []CycleTrace, a Assertion) error {
	count := 0
	for _, c := range trace {
		for _, e := range c.Effects {
			if e.Kind == a.Kind && (a.Target == "" || e.Target == a.Target) {
				count++
			}
		}
	}
	if count != *a.Count {
		what := a.Kind
		if a.Target != "" {
			what += " for " + a.Target
		}
		return &AssertionError{
			Type:     AssertEffectCount,
			Expected: fmt.Sprintf("%d %s effects", *a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEffectOrder checks that the kinds appear in order across the run.
// Other effects may appear in between.
func assertEffectOrder(trace []CycleTrace, a Assertion) error {
	next := 0
	for _, c := range trace {
		for _, e := range c.Effects {
			if next < len(a.Kinds) && e.Kind == a.Kinds[next] {
				next++
			}
		}
	}
	if next < len(a.Kinds) {
		return &AssertionError{
			Type:     AssertEffectOrder,
			Expected: fmt.Sprintf("effects in order: %v", a.Kinds),
			Actual:   fmt.Sprintf("matched %d, missing %s", next, a.Kinds[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertText checks the text content of the last cycle's tree.
func assertText(trace []CycleTrace, a Assertion) error {
	if len(trace) == 0 {
		return &AssertionError{Type: AssertText, Expected: a.Text, Actual: "no cycles"}
	}
	if got := trace[len(trace)-1].Text; got != a.Text {
		return &AssertionError{Type: AssertText, Expected: fmt.Sprintf("%q", a.Text), Actual: fmt.Sprintf("%q", got)}
	}
	return nil
}

// assertReplay replays the stored cycle log.
func (h *Harness) assertReplay(ctx context.Context) error {
	if _, err := h.runner.Replay(ctx, h.instance); err != nil {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: "cycle log replays identically",
			Actual:   err.Error(),
		}
	}
	return nil
}
