// Package merge grafts a source container hierarchy onto a target one.
//
// The target only ever gains nodes: existing target nodes are matched by
// path and left untouched, missing ones are created top-down so every
// create names a parent that already exists. A failed create skips the
// failed node's subtree and nothing else, so a partial merge can simply be
// re-run.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/refmap"
	"github.com/lherron/aiomigrate/internal/tree"
)

// Skip reasons for nodes that were not attempted
const (
	ReasonParentFailed = "ParentFailed"
	ReasonNotOnTarget  = "NotOnTarget"
)

// PrepareFunc turns a source record into the ContainerSpec to create on the target.
// ParentID is filled in by the engine afterwards.
type PrepareFunc func(ctx context.Context, rec domain.ContainerRecord) (domain.ContainerSpec, error)

// Options tunes a merge
type Options struct {
	// MatchOnly maps existing target nodes and never writes
	MatchOnly bool
	Prepare   PrepareFunc
	Logger    *slog.Logger
}

// Result is the outcome of merging one container kind
type Result struct {
	Kind   domain.ContainerKind
	Source *tree.Tree
	Target *tree.Tree
	Items  []domain.ItemResult
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

// Engine merges container trees from one endpoint into another
type Engine struct {
	source connector.Connector
	target connector.Connector
	refs   *refmap.Map
	opts   Options
	logger *slog.Logger
}

// New creates a merge engine recording its mappings in refs
func New(source, target connector.Connector, refs *refmap.Map, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{source: source, target: target, refs: refs, opts: opts, logger: logger}
}

// Load lists and builds the container tree of kind on an endpoint
func Load(ctx context.Context, conn connector.Connector, kind domain.ContainerKind) (*tree.Tree, error) {
	records, err := conn.ListContainers(ctx, kind)
	if err != nil {
		return nil, domain.Structural(fmt.Sprintf("list %ss on %s", kind, conn.Info().Label()), err)
	}
	t, err := tree.Build(kind, records)
	if err != nil {
		return nil, domain.Structural(fmt.Sprintf("build %s tree of %s", kind, conn.Info().Label()), err)
	}
	return t, nil
}

// Merge makes every source path of kind present on the target. Per-node
// failures are reported in the result; the error is reserved for failures
// that make the whole run meaningless.
func (e *Engine) Merge(ctx context.Context, kind domain.ContainerKind) (*Result, error) {
	src, err := Load(ctx, e.source, kind)
	if err != nil {
		return nil, err
	}
	dst, err := Load(ctx, e.target, kind)
	if err != nil {
		return nil, err
	}

	res := &Result{Kind: kind, Source: src, Target: dst}
	blocked := make(map[int64]bool)
	sourceLabel := e.source.Info().Label()

	for _, node := range src.TopDown() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item := domain.ItemResult{Kind: string(kind), Item: node.Path.String(), SourceID: node.ID()}
		key := refmap.ContainerKey(sourceLabel, kind, node.Path)

		if node.Parent != nil && blocked[node.Parent.ID()] {
			blocked[node.ID()] = true
			item.Outcome = domain.OutcomeSkipped
			item.Reason = ReasonParentFailed
			res.Items = append(res.Items, item)
			continue
		}

		if existing, err := dst.FindByPath(node.Path); err == nil {
			item.TargetID = e.refs.Set(key, existing.ID())
			item.Outcome = domain.OutcomeExisting
			res.Items = append(res.Items, item)
			e.logger.Debug("container exists", "kind", kind, "path", item.Item, "target_id", item.TargetID)
			continue
		}

		if e.opts.MatchOnly {
			blocked[node.ID()] = true
			item.Outcome = domain.OutcomeSkipped
			item.Reason = ReasonNotOnTarget
			res.Items = append(res.Items, item)
			continue
		}

		id, adopted, err := e.create(ctx, dst, node)
		if err != nil {
			if domain.IsStructural(err) {
				return res, domain.Structural(fmt.Sprintf("create %s %q", kind, item.Item), err)
			}
			blocked[node.ID()] = true
			item.Outcome = domain.OutcomeFailed
			item.Reason = domain.Reason(err)
			item.Warnings = []string{err.Error()}
			res.Items = append(res.Items, item)
			e.logger.Error("container create failed", "kind", kind, "path", item.Item, "error", err)
			continue
		}

		item.TargetID = e.refs.Set(key, id)
		if adopted {
			item.Outcome = domain.OutcomeExisting
			e.logger.Info("adopted existing container", "kind", kind, "path", item.Item, "target_id", id)
		} else {
			item.Outcome = domain.OutcomeCreated
			e.logger.Info("created container", "kind", kind, "path", item.Item, "target_id", id)
		}
		res.Items = append(res.Items, item)
	}

	return res, nil
}

// create writes one node under its already-resolved parent and records it
// in the target tree. A duplicate-name refusal means the target changed
// since it was listed; the existing node is adopted.
func (e *Engine) create(ctx context.Context, dst *tree.Tree, node *tree.Node) (int64, bool, error) {
	var parentID *int64
	if node.Parent != nil {
		parent, err := dst.FindByPath(node.Path.Parent())
		if err != nil {
			return 0, false, fmt.Errorf("parent of %q not resolved: %w", node.Path.String(), domain.ErrUnresolvedReference)
		}
		parentID = domain.Int64Ptr(parent.ID())
	}

	spec := domain.ContainerSpec{
		Name:        node.Name(),
		Kind:        dst.Kind,
		Description: node.Record.Description,
		RuleGroups:  node.Record.RuleGroups,
	}
	if e.opts.Prepare != nil {
		prepared, err := e.opts.Prepare(ctx, node.Record)
		if err != nil {
			return 0, false, err
		}
		spec = prepared
		spec.Name = node.Name()
		spec.Kind = dst.Kind
	}
	spec.ParentID = parentID

	adopted := false
	id, err := e.target.CreateContainer(ctx, spec)
	if errors.Is(err, domain.ErrDuplicateName) {
		existing, findErr := e.target.FindContainer(ctx, dst.Kind, spec.Name, parentID)
		if findErr != nil {
			return 0, false, fmt.Errorf("%w (lookup after duplicate failed: %v)", err, findErr)
		}
		id, adopted, err = existing.ID, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	if _, err := dst.Insert(domain.ContainerRecord{ID: id, Name: spec.Name, ParentID: parentID, Kind: dst.Kind}); err != nil {
		return 0, false, fmt.Errorf("failed to record %q: %w", node.Path.String(), err)
	}
	return id, adopted, nil
}
