package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridtrace/internal/store"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the recorded trace history for a session",
		Long: `Read the durable trace history and print a session's timeline:
committed points in commit order, then finished runs with their
per-layer result counts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, dbPath, sessionID, cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "gridtrace.db", "path to the history database")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to print")
	cmd.MarkFlagRequired("session")

	return cmd
}

func runHistory(opts *RootOptions, dbPath, sessionID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(dbPath); err != nil {
		formatter.Error("DB_NOT_FOUND", fmt.Sprintf("history database not found: %s", dbPath), nil)
		return WrapExitError(ExitCommandError, "history database not found", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		formatter.Error("DB_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot open history database", err)
	}
	defer st.Close()

	history, err := st.ReadSessionHistory(cmd.Context(), sessionID)
	if err != nil {
		formatter.Error("READ_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot read session history", err)
	}

	if opts.Format == "json" {
		formatter.Success(history)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d point(s), %d run(s)\n", sessionID, len(history.Points), len(history.Runs))
	for _, p := range history.Points {
		fmt.Fprintf(&b, "  point seq=%d role=%s asset=%s layer=%s", p.Seq, p.Role, p.AssetID, p.Layer)
		if p.TerminalID != "" {
			fmt.Fprintf(&b, " terminal=%s", p.TerminalID)
		}
		b.WriteString("\n")
	}
	for _, r := range history.Runs {
		fmt.Fprintf(&b, "  run seq=%d..%d type=%s", r.StartedSeq, r.FinishedSeq, r.Type)
		if r.Err != "" {
			fmt.Fprintf(&b, " error=%q", r.Err)
		}
		b.WriteString("\n")
	}
	formatter.Success(strings.TrimRight(b.String(), "\n"))
	return nil
}
