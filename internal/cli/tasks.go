package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/cli/appctx"
	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/migrate"
	"github.com/lherron/aiomigrate/internal/render"
	"github.com/lherron/aiomigrate/internal/resolve"
)

type taskFlags struct {
	destination        int
	dryRun             bool
	policySuffix       string
	taskPrefix         string
	jobs               int
	noCreateContainers bool
}

var (
	scheduledFlags  taskFlags
	eventBasedFlags taskFlags
)

const taskLong = `Without --destination, lists the %[1]s tasks of the source endpoint.

With --destination, copies every %[1]s task the destination lacks. The
computer groups and smart folders are merged first so task scopes can be
rewritten to destination ids (--no-create-containers only matches existing
ones). Policies are matched by name plus --policysuffix, contacts by email,
computers by BIOS UUID. A task whose name (with --taskprefix) already exists
on the destination is skipped; tasks sharing a name with another source task
fail without being written.`

var scheduledTasksCmd = &cobra.Command{
	Use:   "scheduled-tasks <SOURCE-ID>",
	Short: "List or migrate scheduled tasks",
	Long:  fmt.Sprintf(taskLong, "scheduled"),
	Args:  endpointArgs,
	RunE: appctx.WithApp(appctx.WithJournal(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runTasks(app, cmd, args, domain.TaskKindScheduled, &scheduledFlags)
	}),
}

var eventBasedTasksCmd = &cobra.Command{
	Use:   "event-based-tasks <SOURCE-ID>",
	Short: "List or migrate event-based tasks",
	Long:  fmt.Sprintf(taskLong, "event-based"),
	Args:  endpointArgs,
	RunE: appctx.WithApp(appctx.WithJournal(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runTasks(app, cmd, args, domain.TaskKindEventBased, &eventBasedFlags)
	}),
}

func init() {
	rootCmd.AddCommand(scheduledTasksCmd)
	rootCmd.AddCommand(eventBasedTasksCmd)

	for _, c := range []struct {
		cmd   *cobra.Command
		flags *taskFlags
	}{{scheduledTasksCmd, &scheduledFlags}, {eventBasedTasksCmd, &eventBasedFlags}} {
		c.cmd.Flags().IntVarP(&c.flags.destination, "destination", "d", 0, "Destination endpoint id")
		c.cmd.Flags().BoolVar(&c.flags.dryRun, "dry-run", false, "Plan the migration without writing")
		c.cmd.Flags().StringVar(&c.flags.policySuffix, "policysuffix", "", "Suffix appended to policy names on the destination (overrides config)")
		c.cmd.Flags().StringVar(&c.flags.taskPrefix, "taskprefix", "", "Prefix prepended to task names on the destination (overrides config)")
		c.cmd.Flags().IntVarP(&c.flags.jobs, "jobs", "j", 0, "Parallel task workers (overrides config)")
		c.cmd.Flags().BoolVar(&c.flags.noCreateContainers, "no-create-containers", false, "Only match existing groups and folders on the destination")
	}
}

func runTasks(app *appctx.App, cmd *cobra.Command, args []string, kind domain.TaskKind, flags *taskFlags) error {
	ctx := cmd.Context()
	sourceID, err := parseEndpointID(args[0])
	if err != nil {
		return exitError(ExitUsage, err)
	}

	if flags.destination == 0 {
		if flags.dryRun {
			return exitError(ExitUsage, fmt.Errorf("--dry-run requires --destination"))
		}
		return listTasks(app, cmd, sourceID, kind)
	}

	jobs := app.Config.Jobs
	if cmd.Flags().Changed("jobs") {
		if flags.jobs < 1 {
			return exitError(ExitUsage, fmt.Errorf("--jobs must be at least 1"))
		}
		jobs = flags.jobs
	}
	prefix := app.Config.TaskPrefix
	if cmd.Flags().Changed("taskprefix") {
		prefix = flags.taskPrefix
	}

	s, err := openSession(app, sessionParams{
		SourceID:      sourceID,
		DestinationID: flags.destination,
		ObjectKind:    string(kind),
		PolicySuffix:  policySuffix(cmd, app, flags.policySuffix),
		TaskPrefix:    prefix,
		DryRun:        flags.dryRun,
	})
	if err != nil {
		return err
	}

	summaries, runErr := migrateTasks(s, cmd, kind, jobs, flags.noCreateContainers)
	s.Finish(ctx, runErr)

	if flags.dryRun && app.Renderer.Format() == render.FormatTable {
		if err := printPlannedWrites(app, s.planner.Writes()); err != nil {
			return err
		}
	}
	if len(summaries) > 0 {
		if err := app.Renderer.Summaries(summaries); err != nil {
			return err
		}
	}
	if runErr != nil {
		return exitError(ExitStructural, runErr)
	}
	return nil
}

// migrateTasks merges both container kinds so scopes can resolve, then
// migrates the tasks. It returns the summaries of every stage reached.
func migrateTasks(s *session, cmd *cobra.Command, kind domain.TaskKind, jobs int, matchOnly bool) ([]*render.Summary, error) {
	ctx := cmd.Context()
	var summaries []*render.Summary

	groups, err := s.Merger(domain.ContainerKindGroup, nil, matchOnly).Merge(ctx, domain.ContainerKindGroup)
	if groups != nil {
		summaries = append(summaries, s.Record(string(domain.ContainerKindGroup), groups.Items))
	}
	if err != nil {
		return summaries, err
	}

	folderDecoder := resolve.NewSource(s.source, groups.Source, nil)
	folders, err := s.Merger(domain.ContainerKindFolder, folderDecoder, matchOnly).Merge(ctx, domain.ContainerKindFolder)
	if folders != nil {
		summaries = append(summaries, s.Record(string(domain.ContainerKindFolder), folders.Items))
	}
	if err != nil {
		return summaries, err
	}

	decoder := resolve.NewSource(s.source, groups.Source, folders.Source)
	engine := migrate.New(s.source, s.target, decoder, s.Resolver(), migrate.Options{
		TaskPrefix:   s.params.TaskPrefix,
		Jobs:         jobs,
		ShowProgress: s.app.Renderer.Format() == render.FormatTable,
		Logger:       s.app.Logger,
	})
	res, err := engine.Migrate(ctx, kind)
	if res != nil {
		summaries = append(summaries, s.Record(string(kind), res.Items))
	}
	return summaries, err
}

func listTasks(app *appctx.App, cmd *cobra.Command, sourceID int, kind domain.TaskKind) error {
	conn, err := connectFunc(app, sourceID)
	if err != nil {
		return exitError(ExitStructural, fmt.Errorf("failed to connect to source: %w", err))
	}
	tasks, err := conn.ListTasks(cmd.Context(), kind)
	if err != nil {
		return exitError(ExitStructural, domain.Structural(fmt.Sprintf("list %s tasks on %s", kind, conn.Info().Label()), err))
	}

	headers := []string{"ID", "NAME", "TYPE", "ENABLED"}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{strconv.FormatInt(t.ID, 10), t.Name, t.Type, strconv.FormatBool(t.Enabled)})
	}
	return app.Renderer.Render(tasks, headers, rows)
}

// printPlannedWrites lists the creates a dry run absorbed, in the order the
// real run would issue them. Parents that are themselves planned carry
// negative ids.
func printPlannedWrites(app *appctx.App, writes []connector.PlannedWrite) error {
	headers := []string{"OP", "KIND", "NAME", "ID", "PARENT"}
	rows := make([][]string, 0, len(writes))
	for _, w := range writes {
		parent := ""
		if w.ParentID != nil {
			parent = strconv.FormatInt(*w.ParentID, 10)
		}
		rows = append(rows, []string{w.Op, w.Kind, w.Name, strconv.FormatInt(w.ID, 10), parent})
	}
	if err := app.Renderer.RenderTable(headers, rows); err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Fprintln(app.Renderer.Writer())
	}
	return nil
}
