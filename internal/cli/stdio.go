package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/server"
)

// StdioOptions holds flags for the stdio command.
type StdioOptions struct {
	*RootOptions
	StoreOptions
}

// NewStdioCommand creates the stdio command.
func NewStdioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StdioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve JSON-RPC 2.0 on stdin/stdout",
		Long: `Serve JSON-RPC 2.0 with Content-Length framing on stdin and stdout.

Methods: apps, create, cycle, state, delete. Every committed response,
including timer and loader driven ones, is sent as a "response"
notification. Logs go to stderr. The command exits when stdin closes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(opts, cmd)
		},
	}
	opts.StoreOptions.bind(cmd)
	return cmd
}

func runStdio(opts *StdioOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	env, err := loadEnvironment(opts.RootOptions, opts.StoreOptions, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- env.runner.Run(ctx) }()

	err = server.ServeStdio(ctx, env.runner, io.NopCloser(cmd.InOrStdin()), nopWriteCloser{cmd.OutOrStdout()}, logger)
	cancel()
	if runErr := <-done; runErr != nil {
		logger.Error("runner stopped with error", "error", runErr)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "stdio transport error", err)
	}
	return nil
}

// nopWriteCloser keeps the process's stdout open after the connection
// closes.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
