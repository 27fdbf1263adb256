package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridtrace/internal/harness"
)

// NewRunCommand creates the run command, executing a harness scenario.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a workflow scenario and report pass/fail",
		Long: `Execute a conformance scenario against a fresh workflow with
scripted collaborators. The scenario's steps drive the workflow and its
assertions are evaluated against the final state.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, args[0], cmd)
		},
	}
}

func runScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		formatter.Error("LOAD_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot load scenario", err)
	}

	formatter.VerboseLog("Running scenario %q (%d steps, %d assertions)",
		scenario.Name, len(scenario.Steps), len(scenario.Assertions))

	result, err := harness.Run(scenario)
	if err != nil {
		formatter.Error("RUN_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	if opts.Format == "json" {
		formatter.Success(result)
	} else if result.Pass {
		formatter.Success(fmt.Sprintf("PASS %s (%d events)", scenario.Name, len(result.Trace)))
	} else {
		formatter.Error("SCENARIO_FAILED", fmt.Sprintf("FAIL %s:\n  %s",
			scenario.Name, strings.Join(result.Errors, "\n  ")), nil)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}
