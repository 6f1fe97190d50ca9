// Package config loads rehook.cue files.
//
// A config file is unified with the embedded #Config schema, so every field
// is optional and carries a default. Unknown fields, type mismatches and
// constraint violations are reported as *Error with the CUE position of the
// offending value.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
)

//go:embed schema.cue
var schemaSource []byte

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "rehook.cue"

// Backend names accepted in store.backend.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Config is the decoded, fully defaulted configuration.
type Config struct {
	Server Server `json:"server"`
	Store  Store  `json:"store"`
	Engine Engine `json:"engine"`
	Host   Host   `json:"host"`
}

// Server configures the HTTP transport.
type Server struct {
	Addr            string  `json:"addr"`
	MetricsPath     string  `json:"metrics_path"`
	EventsPerSecond float64 `json:"events_per_second"`
	Burst           int     `json:"burst"`
}

// Store selects the snapshot backend.
type Store struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// Engine configures identity handling and budgets.
type Engine struct {
	Identity          string `json:"identity"`
	MaxEventsPerCycle int    `json:"max_events_per_cycle"`
	MaxHooksPerRender int    `json:"max_hooks_per_render"`
	MaxRenderDepth    int    `json:"max_render_depth"`
}

// Host configures background loader work.
type Host struct {
	LoaderConcurrency int `json:"loader_concurrency"`
	LoaderTimeoutMS   int `json:"loader_timeout_ms"`
	MaxSettleRounds   int `json:"max_settle_rounds"`
	MaxBatch          int `json:"max_batch"`
}

// Error is a config error with an optional source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := LoadBytes("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads and decodes the file at path. An empty path, or a missing
// DefaultFile, yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return Default(), nil
		}
		path = DefaultFile
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadBytes(path, src)
}

// LoadBytes decodes src, reported under name in error positions.
func LoadBytes(name string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(name))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	return &cfg, nil
}

// EngineOptions converts the engine section to engine options. The schema
// restricts identity to the modes ParseIdentityMode accepts.
func (c *Config) EngineOptions() []engine.Option {
	mode, _ := engine.ParseIdentityMode(c.Engine.Identity)
	return []engine.Option{
		engine.WithIdentityMode(mode),
		engine.WithBudget(engine.Budget{
			MaxEventsPerCycle: c.Engine.MaxEventsPerCycle,
			MaxHooksPerRender: c.Engine.MaxHooksPerRender,
			MaxRenderDepth:    c.Engine.MaxRenderDepth,
		}),
	}
}

// HostConfig converts the host section.
func (c *Config) HostConfig() host.Config {
	return host.Config{
		LoaderConcurrency: c.Host.LoaderConcurrency,
		LoaderTimeout:     time.Duration(c.Host.LoaderTimeoutMS) * time.Millisecond,
		MaxSettleRounds:   c.Host.MaxSettleRounds,
		MaxBatch:          c.Host.MaxBatch,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "config"
	if path := fieldPath(first.Path()); path != "" {
		field = path
	}
	msg, args := first.Msg()
	e := &Error{Field: field, Message: fmt.Sprintf(msg, args...)}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

// fieldPath drops the schema definition from an error path.
func fieldPath(path []string) string {
	var parts []string
	for _, p := range path {
		if p != "#Config" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}
