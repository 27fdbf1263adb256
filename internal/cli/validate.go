package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridtrace/internal/config"
	"github.com/roach88/gridtrace/internal/network"
)

// ValidationResult holds the outcome of compiling a configuration file.
type ValidationResult struct {
	Valid   bool                  `json:"valid"`
	Configs []network.TraceConfig `json:"configs,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <configs.cue>",
		Short: "Compile and validate trace configurations",
		Long: `Compile a CUE trace-configuration file and report the named
configurations it defines. Unknown trace types and malformed
configurations are rejected with source positions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	configs, err := config.LoadFile(path)
	if err != nil {
		var compileErr *config.CompileError
		if errors.As(err, &compileErr) {
			formatter.Error("COMPILE_ERROR", compileErr.Error(), nil)
			return NewExitError(ExitFailure, "configuration is invalid")
		}
		formatter.Error("LOAD_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot load configuration", err)
	}

	if opts.Format == "json" {
		formatter.Success(ValidationResult{Valid: true, Configs: configs})
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration(s) valid:\n", len(configs))
	for _, cfg := range configs {
		fmt.Fprintf(&b, "  %s: %s", cfg.Name, cfg.Type)
		if cfg.Domain != "" {
			fmt.Fprintf(&b, " domain=%s", cfg.Domain)
		}
		if cfg.Tier != "" {
			fmt.Fprintf(&b, " tier=%q", cfg.Tier)
		}
		b.WriteString("\n")
	}
	formatter.Success(strings.TrimRight(b.String(), "\n"))
	return nil
}
