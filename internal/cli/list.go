package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/racelab/internal/report"
	"github.com/roach88/racelab/internal/scenarios"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		Long: `List every registered scenario with its kind and supported modes.

Example:
  racelab list
  racelab list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			all := scenarios.All()
			if out.JSON() {
				return out.Success(report.NewCatalog(all))
			}
			return report.WriteCatalog(cmd.OutOrStdout(), all)
		},
	}
}
