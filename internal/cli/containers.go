package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/cli/appctx"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/merge"
	"github.com/lherron/aiomigrate/internal/render"
	"github.com/lherron/aiomigrate/internal/resolve"
	"github.com/lherron/aiomigrate/internal/tree"
)

type containerFlags struct {
	destination  int
	dryRun       bool
	policySuffix string
}

var (
	groupsFlags  containerFlags
	foldersFlags containerFlags
)

var groupsCmd = &cobra.Command{
	Use:   "groups <SOURCE-ID>",
	Short: "List or merge computer groups",
	Long: `Without --destination, prints the computer group tree of the source endpoint.

With --destination, merges the source tree into the destination: groups the
destination already has (same name path) are left untouched and missing ones
are created parent first. A group that cannot be created is reported as
failed and its subtree is skipped.`,
	Args: endpointArgs,
	RunE: appctx.WithApp(appctx.WithJournal(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runContainers(app, cmd, args, domain.ContainerKindGroup, &groupsFlags)
	}),
}

var foldersCmd = &cobra.Command{
	Use:   "folders <SOURCE-ID>",
	Short: "List or merge smart folders",
	Long: `Without --destination, prints the smart folder tree of the source endpoint.

With --destination, merges the source tree into the destination like
'groups' does. Folder rules that reference a policy are rewritten to the
destination policy of the same name (plus --policysuffix); a folder whose
policy cannot be found fails with PolicyNotFound.`,
	Args: endpointArgs,
	RunE: appctx.WithApp(appctx.WithJournal(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runContainers(app, cmd, args, domain.ContainerKindFolder, &foldersFlags)
	}),
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(foldersCmd)

	for _, c := range []struct {
		cmd   *cobra.Command
		flags *containerFlags
	}{{groupsCmd, &groupsFlags}, {foldersCmd, &foldersFlags}} {
		c.cmd.Flags().IntVarP(&c.flags.destination, "destination", "d", 0, "Destination endpoint id")
		c.cmd.Flags().BoolVar(&c.flags.dryRun, "dry-run", false, "Plan the merge without writing")
	}
	foldersCmd.Flags().StringVar(&foldersFlags.policySuffix, "policysuffix", "", "Suffix appended to policy names on the destination (overrides config)")
}

func runContainers(app *appctx.App, cmd *cobra.Command, args []string, kind domain.ContainerKind, flags *containerFlags) error {
	ctx := cmd.Context()
	sourceID, err := parseEndpointID(args[0])
	if err != nil {
		return exitError(ExitUsage, err)
	}

	if flags.destination == 0 {
		if flags.dryRun {
			return exitError(ExitUsage, fmt.Errorf("--dry-run requires --destination"))
		}
		conn, err := connectFunc(app, sourceID)
		if err != nil {
			return exitError(ExitStructural, fmt.Errorf("failed to connect to source: %w", err))
		}
		t, err := merge.Load(ctx, conn, kind)
		if err != nil {
			return exitError(ExitStructural, err)
		}
		return app.Renderer.Tree(t)
	}

	s, err := openSession(app, sessionParams{
		SourceID:      sourceID,
		DestinationID: flags.destination,
		ObjectKind:    string(kind),
		PolicySuffix:  policySuffix(cmd, app, flags.policySuffix),
		DryRun:        flags.dryRun,
	})
	if err != nil {
		return err
	}

	var decoder *resolve.Source
	if kind == domain.ContainerKindFolder {
		decoder = resolve.NewSource(s.source, nil, nil)
	}
	res, runErr := s.Merger(kind, decoder, false).Merge(ctx, kind)

	var summary *render.Summary
	if res != nil {
		summary = s.Record(string(kind), res.Items)
	}
	s.Finish(ctx, runErr)

	if res != nil {
		if flags.dryRun && app.Renderer.Format() == render.FormatTable {
			before, after := planPaths(res.Target)
			diff, err := render.PlanDiff(s.target.Info().Label(), before, after)
			if err != nil {
				return fmt.Errorf("failed to render plan: %w", err)
			}
			if diff != "" {
				fmt.Fprintln(app.Renderer.Writer(), diff)
			}
		}
		if err := app.Renderer.Summary(summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		return exitError(ExitStructural, runErr)
	}
	return nil
}

// planPaths lists the target paths before and after a dry run; planned
// nodes carry negative ids
func planPaths(t *tree.Tree) (before, after []domain.Path) {
	t.Walk(func(n *tree.Node) bool {
		after = append(after, n.Path)
		if n.ID() >= 0 {
			before = append(before, n.Path)
		}
		return true
	})
	return before, after
}
