package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rehook/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	StoreOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve apps over HTTP and websockets",
		Long: `Serve every demo app over HTTP.

Instances are persisted in the configured store; timers, loaders and
channel subscriptions of stored instances resume on start. Every committed
response is pushed to the instance's websocket.

Example:
  rehook serve
  rehook serve --addr :9000 --db ./rehook.db --backend bolt --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	opts.StoreOptions.bind(cmd)

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	env, err := loadEnvironment(opts.RootOptions, opts.StoreOptions, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	addr := env.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := server.New(env.runner,
		server.WithConfig(server.Config{
			MetricsPath:     env.cfg.Server.MetricsPath,
			EventsPerSecond: env.cfg.Server.EventsPerSecond,
			Burst:           env.cfg.Server.Burst,
		}),
		server.WithGatherer(env.registry),
		server.WithLogger(logger),
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	logger.Info("serving", "addr", ln.Addr().String(), "apps", len(env.runner.Apps()))
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return env.runner.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx, ln) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM or when the command's own
// context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
