package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	StoreOptions
	Instance string // optional - one instance only
	App      string // optional - instances of one app only
}

// ReplayInstanceResult holds the replay result for a single instance.
type ReplayInstanceResult struct {
	Instance      string `json:"instance"`
	App           string `json:"app"`
	Cycles        int    `json:"cycles"`
	StateDigest   string `json:"state_digest,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Seq           int64  `json:"diverged_at,omitempty"`
	Field         string `json:"field,omitempty"`
	Diff          string `json:"diff,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Instances        []ReplayInstanceResult `json:"instances"`
	Total            int                    `json:"total"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay cycle logs and verify determinism",
		Long: `Replay the stored cycle log of every instance and verify determinism.

Each logged request is run again against the current app code. The tree,
delta, effects and requeued loads must match the logged response, each
prior state must equal the previous state plus delta, and the final state
must equal the committed snapshot.

Exit codes:
  0 - All instances replay identically
  1 - A replay diverged
  2 - Command error (database not found, etc.)

Examples:
  rehook replay --db ./rehook.db
  rehook replay --db ./rehook.db --instance 0192...
  rehook replay --db ./rehook.db --app ticker --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	opts.StoreOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "replay one instance only")
	cmd.Flags().StringVar(&opts.App, "app", "", "replay instances of one app only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	runner := host.New(st, demo.Engines(append(cfg.EngineOptions(), engine.WithLogger(logger))...),
		host.WithLogger(logger))

	var insts []store.Instance
	if opts.Instance != "" {
		inst, err := st.GetInstance(ctx, opts.Instance)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("instance %s", opts.Instance), err)
		}
		insts = []store.Instance{inst}
	} else {
		insts, err = st.ListInstances(ctx, opts.App)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list instances", err)
		}
	}

	result := ReplayResult{
		Instances:        make([]ReplayInstanceResult, 0, len(insts)),
		Total:            len(insts),
		AllDeterministic: true,
	}
	for _, inst := range insts {
		f.VerboseLog("replaying %s (%s)", inst.ID, inst.App)
		r := ReplayInstanceResult{Instance: inst.ID, App: inst.App}
		res, err := runner.Replay(ctx, inst.ID)
		var mm *engine.ReplayMismatchError
		switch {
		case err == nil:
			r.Deterministic = true
			r.Cycles = res.Cycles
			r.StateDigest = res.StateDigest
		case errors.As(err, &mm):
			r.Seq, r.Field, r.Diff = mm.Seq, mm.Field, mm.Diff
		case ctx.Err() != nil:
			return WrapExitError(ExitCommandError, "replay interrupted", err)
		default:
			r.Error = err.Error()
		}
		if !r.Deterministic {
			result.AllDeterministic = false
		}
		result.Instances = append(result.Instances, r)
	}

	var failed *CLIError
	if !result.AllDeterministic {
		failed = &CLIError{Code: CodeReplay, Message: "determinism verification failed"}
	}
	if f.JSON() {
		if err := f.Result(result, failed); err != nil {
			return err
		}
	} else {
		outputReplayText(f, result)
	}
	if failed != nil {
		return NewExitError(ExitFailure, failed.Message)
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No instances found in database.")
		return
	}
	fmt.Fprintf(w, "Replay Summary: %d instance(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, r := range result.Instances {
		switch {
		case r.Deterministic:
			f.Pass("%s (%s): %d cycles", r.Instance, r.App, r.Cycles)
			if f.Verbose {
				fmt.Fprintf(w, "  digest: %s\n", r.StateDigest)
			}
		case r.Error != "":
			f.Fail("%s (%s): %s", r.Instance, r.App, r.Error)
		default:
			f.Fail("%s (%s): diverged at seq %d in %s", r.Instance, r.App, r.Seq, r.Field)
			fmt.Fprintln(w, r.Diff)
		}
	}
	fmt.Fprintln(w)

	if result.AllDeterministic {
		f.Pass("All instances verified deterministic")
		return
	}
	f.Fail("Determinism verification failed")
}
