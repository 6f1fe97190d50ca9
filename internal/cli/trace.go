package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	StoreOptions
	Instance string
	Kind     string // optional event kind filter
}

// TraceCycle is one committed cycle in the timeline.
type TraceCycle struct {
	Seq         int64         `json:"seq"`
	Events      []TraceEvent  `json:"events"`
	Set         []string      `json:"set"`
	Removed     []string      `json:"removed"`
	Effects     []TraceEffect `json:"effects"`
	Requeued    []string      `json:"requeued"`
	Dropped     []TraceDrop   `json:"dropped"`
	Errors      []string      `json:"errors"`
	Text        string        `json:"text"`
	StateDigest string        `json:"state_digest"`
}

// TraceEvent is an inbound event.
type TraceEvent struct {
	Kind    string `json:"kind"`
	Target  string `json:"target,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// TraceEffect is an emitted effect.
type TraceEffect struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// TraceDrop is an event the engine ignored.
type TraceDrop struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Instance string       `json:"instance"`
	App      string       `json:"app"`
	Timeline []TraceCycle `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Cycles  int `json:"cycles"`
	Events  int `json:"events"`
	Effects int `json:"effects"`
	Dropped int `json:"dropped"`
	Errors  int `json:"errors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the cycle log of an instance",
		Long: `Show the stored cycle log of an instance.

For every committed cycle the timeline lists the events delivered, the hook
ids written and pruned, the effects emitted, the loads requeued and the
events dropped.

Examples:
  rehook trace --db ./rehook.db --instance 0192...
  rehook trace --db ./rehook.db --instance 0192... --kind timer-fire
  rehook trace --db ./rehook.db --instance 0192... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	opts.StoreOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance id to trace (required)")
	_ = cmd.MarkFlagRequired("instance")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show cycles with an event of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := opts.StoreOptions.apply(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	st, err := openExisting(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	inst, err := st.GetInstance(ctx, opts.Instance)
	if errors.Is(err, store.ErrNotFound) {
		if f.JSON() {
			_ = f.Error(CodeNotFound, err.Error(), map[string]string{"instance": opts.Instance})
		}
		return WrapExitError(ExitCommandError, fmt.Sprintf("instance %s", opts.Instance), err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read instance", err)
	}
	entries, err := st.ReadCycles(ctx, opts.Instance)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycle log", err)
	}

	timeline, err := buildTimeline(entries, opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode cycle log", err)
	}
	result := TraceResult{
		Instance: inst.ID,
		App:      inst.App,
		Timeline: timeline,
		Stats:    traceStats(timeline),
	}

	if f.JSON() {
		return f.Success(result)
	}
	return outputTraceText(f, result)
}

// buildTimeline decodes the log. With kind set, only cycles that delivered
// an event of that kind are kept.
func buildTimeline(entries []store.CycleEntry, kind string) ([]TraceCycle, error) {
	recs, err := host.Records(entries)
	if err != nil {
		return nil, err
	}
	timeline := make([]TraceCycle, 0, len(recs))
	for i, rec := range recs {
		req, resp := rec.Request, rec.Response
		c := TraceCycle{
			Seq:         resp.Seq,
			Events:      make([]TraceEvent, 0, len(req.Events)),
			Set:         make([]string, 0, len(resp.Delta.Set)),
			Removed:     make([]string, 0, len(resp.Delta.Removed)),
			Effects:     make([]TraceEffect, 0, len(resp.Effects)),
			Requeued:    make([]string, 0, len(resp.Requeued)),
			Dropped:     make([]TraceDrop, 0, len(resp.Dropped)),
			Errors:      make([]string, 0, len(resp.Errors)),
			Text:        resp.Tree.TextContent(),
			StateDigest: entries[i].StateDigest,
		}
		match := kind == ""
		for _, ev := range req.Events {
			c.Events = append(c.Events, TraceEvent{Kind: string(ev.Kind), Target: string(ev.Target), Channel: ev.Channel})
			if string(ev.Kind) == kind {
				match = true
			}
		}
		if !match {
			continue
		}
		for _, id := range resp.Delta.SetIDs() {
			c.Set = append(c.Set, string(id))
		}
		for _, id := range resp.Delta.Removed {
			c.Removed = append(c.Removed, string(id))
		}
		for _, e := range resp.Effects {
			c.Effects = append(c.Effects, TraceEffect{ID: e.ID, Kind: string(e.Kind), Target: string(e.Target)})
		}
		for _, rq := range resp.Requeued {
			c.Requeued = append(c.Requeued, string(rq.HookID))
		}
		for _, d := range resp.Dropped {
			c.Dropped = append(c.Dropped, TraceDrop{Index: d.Index, Reason: d.Reason})
		}
		for _, e := range resp.Errors {
			c.Errors = append(c.Errors, e.Message)
		}
		timeline = append(timeline, c)
	}
	return timeline, nil
}

func traceStats(timeline []TraceCycle) TraceStats {
	s := TraceStats{Cycles: len(timeline)}
	for _, c := range timeline {
		s.Events += len(c.Events)
		s.Effects += len(c.Effects)
		s.Dropped += len(c.Dropped)
		s.Errors += len(c.Errors)
	}
	return s
}

// outputTraceText outputs the trace result as text.
func outputTraceText(f *OutputFormatter, result TraceResult) error {
	w := f.Writer

	fmt.Fprintf(w, "Trace for instance %s (%s)\n", result.Instance, result.App)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no cycles)")
	}
	for _, c := range result.Timeline {
		formatTraceCycle(w, c, f.Verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Cycles:  %d\n", result.Stats.Cycles)
	fmt.Fprintf(w, "  Events:  %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Effects: %d\n", result.Stats.Effects)
	fmt.Fprintf(w, "  Dropped: %d\n", result.Stats.Dropped)
	fmt.Fprintf(w, "  Errors:  %d\n", result.Stats.Errors)
	return nil
}

func formatTraceCycle(w io.Writer, c TraceCycle, verbose bool) {
	events := make([]string, len(c.Events))
	for i, ev := range c.Events {
		events[i] = ev.Kind + " " + ev.Target + ev.Channel
	}
	if len(events) == 0 {
		events = []string{"mount"}
	}
	fmt.Fprintf(w, "  [%d] %s\n", c.Seq, strings.Join(events, ", "))
	fmt.Fprintf(w, "       text: %s\n", c.Text)
	if len(c.Set) > 0 {
		fmt.Fprintf(w, "       set: %s\n", strings.Join(c.Set, ", "))
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(w, "       removed: %s\n", strings.Join(c.Removed, ", "))
	}
	for _, e := range c.Effects {
		fmt.Fprintf(w, "       effect %s %s\n", e.Kind, e.Target)
		if verbose {
			fmt.Fprintf(w, "         id: %s\n", truncateID(e.ID))
		}
	}
	for _, id := range c.Requeued {
		fmt.Fprintf(w, "       requeued %s\n", id)
	}
	for _, d := range c.Dropped {
		fmt.Fprintf(w, "       dropped event %d: %s\n", d.Index, d.Reason)
	}
	for _, e := range c.Errors {
		fmt.Fprintf(w, "       error: %s\n", e)
	}
	if verbose {
		fmt.Fprintf(w, "       digest: %s\n", truncateID(c.StateDigest))
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
