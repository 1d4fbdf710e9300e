// Package migrate copies scheduled and event-based tasks from one endpoint
// to another. Each task is decoded against its source, every reference it
// carries is resolved on the target, and the result is written at most
// once per effective name. Tasks are independent of each other and run on
// a bounded worker pool.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/lherron/aiomigrate/internal/bulk"
	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/resolve"
)

// Skip reasons for tasks that were not written
const (
	ReasonAlreadyExists = "AlreadyExists"
	ReasonUnsupported   = "Unsupported"
	ReasonAborted       = "Aborted"
)

// Options tunes a task migration
type Options struct {
	// TaskPrefix is prepended to every source task name
	TaskPrefix   string
	Jobs         int
	ShowProgress bool
	Progress     io.Writer
	Logger       *slog.Logger
}

// Result is the outcome of migrating one task kind. Items are in source
// listing order.
type Result struct {
	Kind  domain.TaskKind
	Items []domain.ItemResult
}

// Count returns how many items ended with the outcome
func (r *Result) Count(outcome domain.Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Engine migrates tasks between two endpoints
type Engine struct {
	source   connector.Connector
	target   connector.Connector
	decoder  *resolve.Source
	resolver *resolve.Resolver
	opts     Options
	logger   *slog.Logger
}

// New creates a task engine. The decoder must wrap source, and the
// resolver's reference map must already hold the merged container paths.
func New(source, target connector.Connector, decoder *resolve.Source, resolver *resolve.Resolver, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		source:   source,
		target:   target,
		decoder:  decoder,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
	}
}

// Migrate writes every source task of kind that the target lacks. Per-task
// failures are reported in the result; the error is reserved for failures
// that abort the run, in which case the result lists what happened so far.
func (e *Engine) Migrate(ctx context.Context, kind domain.TaskKind) (*Result, error) {
	tasks, err := e.source.ListTasks(ctx, kind)
	if err != nil {
		return nil, domain.Structural(fmt.Sprintf("list %s tasks on %s", kind, e.source.Info().Label()), err)
	}
	existing, err := e.target.ListTasks(ctx, kind)
	if err != nil {
		return nil, domain.Structural(fmt.Sprintf("list %s tasks on %s", kind, e.target.Info().Label()), err)
	}

	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[t.Name] = true
	}

	res := &Result{Kind: kind, Items: make([]domain.ItemResult, len(tasks))}
	byName := make(map[string][]int, len(tasks))
	for i, t := range tasks {
		name := domain.EffectiveName(e.opts.TaskPrefix, t.Name)
		res.Items[i] = domain.ItemResult{Kind: string(kind), Item: name, SourceID: t.ID}
		byName[name] = append(byName[name], i)
	}

	// A name the target already has is skipped by every member of its group,
	// so collisions only fail names that would have to be created.
	pending := make([]int, 0, len(tasks))
	for i := range tasks {
		name := res.Items[i].Item
		group := byName[name]
		if len(group) == 1 || taken[name] {
			pending = append(pending, i)
			continue
		}
		ids := make([]int64, len(group))
		for j, idx := range group {
			ids[j] = tasks[idx].ID
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		e.fail(&res.Items[i], &domain.CollisionError{Name: res.Items[i].Item, SourceIDs: ids})
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	op := &bulk.Operation{
		Jobs:            e.opts.Jobs,
		ContinueOnError: true,
		ShowProgress:    e.opts.ShowProgress,
		Progress:        e.opts.Progress,
	}
	label := func(i int) string { return res.Items[i].Item }
	batch := bulk.Execute(runCtx, op, pending, label, func(ctx context.Context, i int) error {
		err := e.migrateOne(ctx, tasks[i], taken, &res.Items[i])
		if err != nil && domain.IsStructural(err) {
			cancel(domain.Structural(fmt.Sprintf("migrate %s task %q", kind, res.Items[i].Item), err))
		}
		return err
	})
	if batch.Failed > 0 || batch.Skipped > 0 {
		e.logger.Warn("task batch finished", "kind", kind, "summary", batch.Summary(), "failed_items", batch.FailedItems())
	} else {
		e.logger.Info("task batch finished", "kind", kind, "summary", batch.Summary())
	}

	for i := range res.Items {
		if res.Items[i].Outcome == "" {
			res.Items[i].Outcome = domain.OutcomeSkipped
			res.Items[i].Reason = ReasonAborted
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if cause := context.Cause(runCtx); cause != nil {
		return res, cause
	}
	return res, nil
}

// migrateOne fills in item for one task and returns the failure, if any
func (e *Engine) migrateOne(ctx context.Context, rec domain.TaskRecord, taken map[string]bool, item *domain.ItemResult) error {
	name := item.Item

	if taken[name] {
		item.Outcome = domain.OutcomeSkipped
		item.Reason = ReasonAlreadyExists
		e.logger.Debug("task exists", "kind", rec.Kind, "task", name)
		return nil
	}
	if !e.target.SupportsTaskType(rec.Kind, rec.Type) {
		item.Outcome = domain.OutcomeSkipped
		item.Reason = ReasonUnsupported
		item.Warnings = []string{fmt.Sprintf("task type %q is not supported by %s", rec.Type, e.target.Info().Label())}
		e.logger.Warn("task type unsupported on target", "kind", rec.Kind, "task", name, "type", rec.Type)
		return nil
	}

	def, err := e.decoder.Decode(ctx, rec)
	item.Warnings = append(item.Warnings, def.Warnings...)
	if err != nil {
		return e.fail(item, err)
	}

	payload, warnings, err := e.build(ctx, def, name)
	item.Warnings = append(item.Warnings, warnings...)
	if err != nil {
		return e.fail(item, err)
	}

	digest, err := Digest(payload)
	if err != nil {
		return e.fail(item, fmt.Errorf("failed to digest payload: %w", err))
	}

	id, err := e.target.CreateTask(ctx, payload)
	if errors.Is(err, domain.ErrDuplicateName) {
		item.Outcome = domain.OutcomeSkipped
		item.Reason = ReasonAlreadyExists
		e.logger.Info("task appeared on target during run", "kind", rec.Kind, "task", name)
		return nil
	}
	if err != nil {
		return e.fail(item, err)
	}

	item.Outcome = domain.OutcomeCreated
	item.TargetID = id
	item.Digest = digest
	e.logger.Info("created task", "kind", rec.Kind, "task", name, "target_id", id)
	return nil
}

func (e *Engine) fail(item *domain.ItemResult, err error) error {
	item.Outcome = domain.OutcomeFailed
	item.Reason = domain.Reason(err)
	item.Warnings = append(item.Warnings, err.Error())
	e.logger.Error("task migration failed", "kind", item.Kind, "task", item.Item, "reason", item.Reason, "error", err)
	return err
}
