package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/boltstore"
	"github.com/roach88/rehook/internal/config"
	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/metric"
	"github.com/roach88/rehook/internal/store"
)

// StoreOptions override the store section of the config file.
type StoreOptions struct {
	Database string
	Backend  string
}

func (o *StoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "database path (overrides store.path)")
	cmd.Flags().StringVar(&o.Backend, "backend", "", "store backend: sqlite|bolt (overrides store.backend)")
}

// apply folds the flags into cfg.
func (o StoreOptions) apply(cfg *config.Config) error {
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	switch o.Backend {
	case "":
	case config.BackendSQLite, config.BackendBolt:
		cfg.Store.Backend = o.Backend
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", o.Backend, config.BackendSQLite, config.BackendBolt)
	}
	return nil
}

// loadConfig reads the --config file, or the defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openBackend opens the store the config selects.
func openBackend(cfg config.Store) (store.Backend, error) {
	if cfg.Backend == config.BackendBolt {
		st, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := store.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// openExisting opens a store for inspection. A missing file is an error
// instead of a new, empty database.
func openExisting(cfg config.Store) (store.Backend, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := openBackend(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, nil
}

// environment is the runtime shared by the commands that drive instances.
type environment struct {
	cfg      *config.Config
	store    store.Backend
	runner   *host.Runner
	metrics  *metric.Metrics
	registry *prometheus.Registry
	logger   *slog.Logger
}

// loadEnvironment loads the config, opens the store and builds a runner over
// every demo app. The caller closes the environment.
func loadEnvironment(opts *RootOptions, so StoreOptions, logger *slog.Logger) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := so.apply(cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}

	m, reg, err := metric.NewRegistered()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	logger.Debug("opening store", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
	st, err := openBackend(cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	engineOpts := append(cfg.EngineOptions(), engine.WithLogger(logger), engine.WithMetrics(m))
	runner := host.New(st, demo.Engines(engineOpts...),
		host.WithConfig(cfg.HostConfig()),
		host.WithLogger(logger),
		host.WithMetrics(m),
	)
	return &environment{cfg: cfg, store: st, runner: runner, metrics: m, registry: reg, logger: logger}, nil
}

func (env *environment) Close() {
	if err := env.store.Close(); err != nil {
		env.logger.Error("error closing store", "error", err)
	}
}
