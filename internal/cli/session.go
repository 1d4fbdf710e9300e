package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/cli/appctx"
	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/journal"
	"github.com/lherron/aiomigrate/internal/merge"
	"github.com/lherron/aiomigrate/internal/notify"
	"github.com/lherron/aiomigrate/internal/refmap"
	"github.com/lherron/aiomigrate/internal/render"
	"github.com/lherron/aiomigrate/internal/resolve"
)

// connectFunc builds the connector for a configured endpoint id. Tests
// replace it with in-memory endpoints.
var connectFunc = func(app *appctx.App, id int) (connector.Connector, error) {
	return app.Endpoints.Connect(id, app.Logger)
}

// sessionParams describes one migration run
type sessionParams struct {
	SourceID      int
	DestinationID int
	ObjectKind    string
	PolicySuffix  string
	TaskPrefix    string
	DryRun        bool
}

// session is one source to destination run: both connectors, the shared
// reference map, and the journal entry when the run is recorded
type session struct {
	app     *appctx.App
	params  sessionParams
	source  connector.Connector
	target  connector.Connector
	planner *connector.Planner
	refs    *refmap.Map
	run     *journal.Run

	resolver *resolve.Resolver
	items    []domain.ItemResult
}

func openSession(app *appctx.App, p sessionParams) (*session, error) {
	if p.DestinationID == p.SourceID {
		return nil, exitError(ExitUsage, fmt.Errorf("source and destination are both endpoint %d", p.SourceID))
	}

	source, err := connectFunc(app, p.SourceID)
	if err != nil {
		return nil, exitError(ExitStructural, fmt.Errorf("failed to connect to source: %w", err))
	}
	target, err := connectFunc(app, p.DestinationID)
	if err != nil {
		return nil, exitError(ExitStructural, fmt.Errorf("failed to connect to destination: %w", err))
	}

	s := &session{app: app, params: p, source: source, target: target, refs: refmap.New()}
	if p.DryRun {
		s.planner = connector.NewPlanner(target)
		s.target = s.planner
	}

	if app.Journal != nil && !p.DryRun {
		run, err := app.Journal.Start(journal.RunParams{
			Source:       source.Info().Label(),
			Destination:  target.Info().Label(),
			ObjectKind:   p.ObjectKind,
			PolicySuffix: p.PolicySuffix,
			TaskPrefix:   p.TaskPrefix,
		})
		if err != nil {
			app.Logger.Warn("run will not be journaled", "error", err)
		} else {
			s.run = run
		}
	}

	app.Logger.Info("migration started",
		"kind", p.ObjectKind,
		"source", source.Info().Label(),
		"destination", target.Info().Label(),
		"dry_run", p.DryRun)
	return s, nil
}

// Resolver returns the session's reference resolver, created on first use
func (s *session) Resolver() *resolve.Resolver {
	if s.resolver == nil {
		s.resolver = resolve.New(s.source.Info().Label(), s.target, s.refs, resolve.Options{
			PolicySuffix: s.params.PolicySuffix,
			Logger:       s.app.Logger,
		})
	}
	return s.resolver
}

// Merger returns a container merge engine. Folder merges rewrite smart
// folder policy rules through decoder.
func (s *session) Merger(kind domain.ContainerKind, decoder *resolve.Source, matchOnly bool) *merge.Engine {
	opts := merge.Options{MatchOnly: matchOnly, Logger: s.app.Logger}
	if kind == domain.ContainerKindFolder {
		opts.Prepare = resolve.FolderRules(decoder, s.Resolver())
	}
	return merge.New(s.source, s.target, s.refs, opts)
}

// Record adds a stage's outcomes to the run and returns its summary
func (s *session) Record(kind string, items []domain.ItemResult) *render.Summary {
	if s.params.DryRun {
		connector.MarkPlanned(items)
	}
	s.items = append(s.items, items...)
	summary := render.NewSummary(kind, items)
	summary.DryRun = s.params.DryRun
	if s.run != nil {
		summary.RunID = s.run.ID
	}
	return summary
}

// Finish journals the run and posts the webhook summary. Neither can
// change the outcome of the run; failures are logged.
func (s *session) Finish(ctx context.Context, runErr error) {
	status := journal.StatusCompleted
	if runErr != nil {
		status = journal.StatusAborted
	}

	if s.run != nil {
		if err := s.app.Journal.Finish(s.run.ID, s.items, runErr); err != nil {
			s.app.Logger.Warn("failed to journal run", "run", s.run.ID, "error", err)
		}
	}

	if s.app.Logger.Enabled(ctx, slog.LevelDebug) {
		for _, e := range s.refs.Entries() {
			s.app.Logger.Debug("reference",
				"endpoint", e.Key.Endpoint,
				"kind", e.Key.Kind,
				"ref", strings.ReplaceAll(e.Key.Ref, "\x00", "/"),
				"target_id", e.TargetID)
		}
	}

	counts := make(map[string]int)
	for _, item := range s.items {
		counts[string(item.Outcome)]++
	}
	s.app.Logger.Info("migration finished",
		"kind", s.params.ObjectKind,
		"status", status,
		"created", counts[string(domain.OutcomeCreated)],
		"planned", counts[string(domain.OutcomePlanned)],
		"existing", counts[string(domain.OutcomeExisting)],
		"skipped", counts[string(domain.OutcomeSkipped)],
		"failed", counts[string(domain.OutcomeFailed)])

	if s.params.DryRun {
		return
	}
	notifier := notify.New(s.app.Config.WebhookURLs, s.app.Logger)
	if notifier == nil {
		return
	}
	payload := notify.Payload{
		Kind:        s.params.ObjectKind,
		Source:      s.source.Info().Label(),
		Destination: s.target.Info().Label(),
		Status:      status,
		Counts:      counts,
	}
	if s.run != nil {
		payload.RunID = s.run.ID
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	notifier.Send(context.WithoutCancel(ctx), payload)
}

// policySuffix returns the --policysuffix flag when given, else the configured default
func policySuffix(cmd *cobra.Command, app *appctx.App, flag string) string {
	if f := cmd.Flags().Lookup("policysuffix"); f != nil && f.Changed {
		return flag
	}
	return app.Config.PolicySuffix
}
