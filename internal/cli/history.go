package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/cli/appctx"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/render"
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN-UUID]",
	Short: "Show recorded migration runs",
	Long: `Without an argument, lists the most recent runs from the journal.
With a run id (or a unique prefix of one), prints that run's outcomes.

The journal is a record only. It is never consulted when deciding what to
create; the destination's own listing is.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return exitError(ExitUsage, fmt.Errorf("history takes at most one RUN-UUID argument"))
		}
		return nil
	},
	RunE: appctx.WithApp(appctx.Options{ForceJournal: true}, runHistory),
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
}

func runHistory(app *appctx.App, cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showRun(app, args[0])
	}

	runs, err := app.Journal.Runs(historyLimit)
	if err != nil {
		return err
	}

	headers := []string{"RUN", "STARTED", "KIND", "SOURCE", "DESTINATION", "STATUS", "CREATED", "EXISTING", "SKIPPED", "FAILED"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			r.StartedAt.Local().Format(time.DateTime),
			r.ObjectKind,
			r.Source,
			r.Destination,
			r.Status,
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Existing),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
		})
	}
	return app.Renderer.Render(runs, headers, rows)
}

func showRun(app *appctx.App, id string) error {
	run, err := app.Journal.Run(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return exitError(ExitUsage, fmt.Errorf("run %q not found", id))
		}
		return err
	}
	items, err := app.Journal.Outcomes(run.ID)
	if err != nil {
		return err
	}

	summary := render.NewSummary(run.ObjectKind, items)
	summary.RunID = run.ID
	return app.Renderer.Summary(summary)
}
