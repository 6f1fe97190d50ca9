package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

// CycleOptions holds flags for the cycle command.
type CycleOptions struct {
	*RootOptions
	Request    string
	RunLoaders bool
}

// CycleOutput is the result of one stateless cycle. Next is the request
// that continues the conversation: the merged state plus any loader
// completions.
type CycleOutput struct {
	Response    *engine.Response `json:"response"`
	Completions []ir.Event       `json:"completions,omitempty"`
	Next        ir.Request       `json:"next"`
}

// NewCycleCommand creates the cycle command.
func NewCycleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cycle <app>",
		Short: "Run one stateless cycle",
		Long: `Run one cycle of an app without a store.

The request (seq, props, prior_state, events) is read as JSON from --request
or stdin; an empty input mounts the app. The output carries the response and
the next request, so outputs can be fed back in.

Example:
  echo '{}' | rehook cycle counter --format json
  rehook cycle list --request req.json --run-loaders --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Request, "request", "-", `request JSON file ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.RunLoaders, "run-loaders", false, "run requeued loaders and include their completions")

	return cmd
}

func runCycle(opts *CycleOptions, app string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	e, err := demo.Engine(app, append(cfg.EngineOptions(), engine.WithLogger(logger))...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load app", err)
	}
	req, err := readRequest(opts.Request, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}
	if req.Seq == 0 {
		req.Seq = 1
	}

	ctx := cmd.Context()
	resp, err := e.Cycle(ctx, req)
	if err != nil {
		if f.JSON() {
			_ = f.Error(errorCode(err), err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "cycle failed", err)
	}

	out := CycleOutput{
		Response: resp,
		Next: ir.Request{
			Seq:        req.Seq + 1,
			Props:      req.Props,
			PriorState: req.PriorState.Merge(resp.Delta),
		},
	}
	if opts.RunLoaders {
		for _, rq := range resp.Requeued {
			f.VerboseLog("running loader %s", rq.HookID)
			ev, err := e.RunLoader(ctx, out.Next.PriorState, req.Props, rq)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("loader %s failed", rq.HookID), err)
			}
			out.Completions = append(out.Completions, ev)
		}
		out.Next.Events = out.Completions
	}

	if f.JSON() {
		return f.Success(out)
	}
	writeCycleText(f, out)
	return nil
}

// readRequest decodes a request from path, or from stdin for "-". Empty
// input is the zero request.
func readRequest(path string, stdin io.Reader) (ir.Request, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ir.Request{}, err
	}
	var req ir.Request
	if strings.TrimSpace(string(data)) == "" {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return ir.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// errorCode returns the code of the first coded error in err's chain.
func errorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeCommandError
}

func writeCycleText(f *OutputFormatter, out CycleOutput) {
	resp := out.Response
	w := f.Writer
	fmt.Fprintf(w, "Cycle %d\n", resp.Seq)
	fmt.Fprintf(w, "  text: %s\n", resp.Tree.TextContent())
	for _, id := range resp.Delta.SetIDs() {
		st := resp.Delta.Set[id]
		fmt.Fprintf(w, "  set %s = %s\n", id, canonicalText(st.Value))
	}
	for _, id := range resp.Delta.Removed {
		fmt.Fprintf(w, "  removed %s\n", id)
	}
	for _, eff := range resp.Effects {
		fmt.Fprintf(w, "  effect %s %s\n", eff.Kind, eff.Target)
	}
	for _, rq := range resp.Requeued {
		fmt.Fprintf(w, "  requeued %s\n", rq.HookID)
	}
	for _, d := range resp.Dropped {
		fmt.Fprintf(w, "  dropped event %d (%s): %s\n", d.Index, d.Kind, d.Reason)
	}
	for _, e := range resp.Errors {
		fmt.Fprintf(w, "  handler error [%s]: %s\n", e.Code, e.Message)
	}
	for _, ev := range out.Completions {
		fmt.Fprintf(w, "  completion %s\n", ev.Target)
	}
}

func canonicalText(v ir.Value) string {
	if v == nil {
		return "null"
	}
	s, err := ir.CanonicalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
