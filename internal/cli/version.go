package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// VersionInfo is the version payload for JSON output.
type VersionInfo struct {
	Version string `json:"version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gridtrace version",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format: rootOpts.Format,
				Writer: cmd.OutOrStdout(),
			}
			if rootOpts.Format == "json" {
				return formatter.Success(VersionInfo{Version: Version})
			}
			return formatter.Success("gridtrace " + Version)
		},
	}
}
