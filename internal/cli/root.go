package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aiomigrate",
	Short: "Migrate computer groups, smart folders and tasks between security managers",
	Long: `aiomigrate copies computer groups, smart folders, scheduled tasks and
event-based tasks from a legacy on-premise manager to its cloud successor.

Hierarchies are merged by name path: nodes the destination already has are
left untouched, missing ones are created parent first. Tasks are rewritten
so every group, folder, policy, contact and computer they reference points
at the destination's copy. Re-running a migration only fills in what is
still missing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with a cancellable context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides AIOMIGRATE_CONFIG)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().Bool("porcelain", false, "Stable machine-readable output")
	rootCmd.PersistentFlags().Bool("no-journal", false, "Do not record this run in the journal")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitError(2, err)
	})
}
