package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/cli/appctx"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List configured endpoints",
	Long: `Lists the endpoints from the config file with the ids the other commands
take as SOURCE-ID and --destination. API keys are masked.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runEndpoints),
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

func runEndpoints(app *appctx.App, cmd *cobra.Command, args []string) error {
	infos := app.Endpoints.List()

	headers := []string{"ID", "NAME", "TYPE", "URL", "API KEY"}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{strconv.Itoa(info.ID), info.Name, info.Dialect, info.URL, info.Key})
	}
	return app.Renderer.Render(infos, headers, rows)
}
