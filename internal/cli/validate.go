package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/rehook/internal/config"
	"github.com/roach88/rehook/internal/demo"
	"github.com/roach88/rehook/internal/harness"
)

// Validation error codes.
const (
	CodeConfigInvalid   = "E_CONFIG"
	CodeScenarioInvalid = "E_SCENARIO"
	CodeUnknownApp      = "E_UNKNOWN_APP"
)

// ValidationError is one problem found by validate.
type ValidationError struct {
	Source  string `json:"source"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Config    string            `json:"config"`
	Scenarios int               `json:"scenarios"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Scenarios string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a config file and scenario files",
		Long: `Validate a rehook.cue config file against the schema, and optionally
every scenario file of a directory, without running anything.

The config file is the argument, else --config, else ./rehook.cue when
present; with none of them the built-in defaults are checked.

Examples:
  rehook validate rehook.cue
  rehook validate --scenarios ./scenarios --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenarios, "scenarios", "", "directory of scenario files to validate")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Config: path}
	if result.Config == "" {
		result.Config = "(defaults)"
		if _, err := os.Stat(config.DefaultFile); err == nil {
			result.Config = config.DefaultFile
		}
	}

	f.VerboseLog("validating config %s", result.Config)
	if _, err := config.Load(path); err != nil {
		result.Errors = append(result.Errors, configError(result.Config, err))
	}

	if opts.Scenarios != "" {
		if info, err := os.Stat(opts.Scenarios); err != nil || !info.IsDir() {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", opts.Scenarios))
		}
		files, err := harness.ScenarioFiles(opts.Scenarios)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list scenarios", err)
		}
		result.Scenarios = len(files)
		for _, file := range files {
			f.VerboseLog("validating scenario %s", file)
			result.Errors = append(result.Errors, validateScenarioFile(file)...)
		}
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		if f.JSON() {
			return f.Success(result)
		}
		f.Pass("Config valid: %s", result.Config)
		if opts.Scenarios != "" {
			f.Pass("%d scenario(s) valid", result.Scenarios)
		}
		return nil
	}
	return outputValidationErrors(f, result)
}

// configError converts a config load failure, keeping its CUE position.
func configError(source string, err error) ValidationError {
	ve := ValidationError{Source: source, Code: CodeConfigInvalid, Message: err.Error()}
	var cerr *config.Error
	if errors.As(err, &cerr) {
		ve.Field = cerr.Field
		ve.Message = cerr.Message
		if cerr.Pos.IsValid() {
			ve.Line = cerr.Pos.Line()
			ve.Column = cerr.Pos.Column()
		}
	}
	return ve
}

func validateScenarioFile(path string) []ValidationError {
	s, err := harness.LoadScenario(path)
	if err != nil {
		return []ValidationError{{Source: path, Code: CodeScenarioInvalid, Message: err.Error()}}
	}
	if _, err := demo.Lookup(s.App); err != nil {
		return []ValidationError{{Source: path, Field: "app", Code: CodeUnknownApp, Message: err.Error()}}
	}
	return nil
}

// outputValidationErrors reports every error and fails with exit code 1.
func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if f.JSON() {
		if err := f.Result(result, &CLIError{Code: errs[0].Code, Message: errs[0].Message}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	f.Fail("Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range errs {
		loc := filepath.ToSlash(e.Source)
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", loc, e.Line, e.Column)
		}
		fmt.Fprintln(f.Writer, loc)
		if e.Field != "" {
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
		} else {
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
