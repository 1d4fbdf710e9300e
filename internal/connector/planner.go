package connector

import (
	"context"
	"sync"

	"github.com/lherron/aiomigrate/internal/domain"
)

// PlannedWrite is a create that a Planner absorbed instead of sending
type PlannedWrite struct {
	Op       string `json:"op" yaml:"op"` // container, task, contact
	Kind     string `json:"kind" yaml:"kind"`
	Name     string `json:"name" yaml:"name"`
	ParentID *int64 `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	ID       int64  `json:"id" yaml:"id"`
}

// Planner wraps a target for dry runs. Reads go to the wrapped endpoint;
// creates are recorded and answered with synthetic negative ids so later
// references can still resolve against them.
type Planner struct {
	Connector

	mu     sync.Mutex
	nextID int64
	writes []PlannedWrite
}

var _ Connector = (*Planner)(nil)

// NewPlanner wraps target
func NewPlanner(target Connector) *Planner {
	return &Planner{Connector: target}
}

func (p *Planner) record(w PlannedWrite) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID--
	w.ID = p.nextID
	p.writes = append(p.writes, w)
	return w.ID
}

func (p *Planner) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.record(PlannedWrite{Op: "container", Kind: string(spec.Kind), Name: spec.Name, ParentID: spec.ParentID}), nil
}

func (p *Planner) CreateTask(ctx context.Context, task domain.TaskRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.record(PlannedWrite{Op: "task", Kind: string(task.Kind), Name: task.Name}), nil
}

func (p *Planner) CreateContact(ctx context.Context, contact domain.Contact) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.record(PlannedWrite{Op: "contact", Kind: contact.Role, Name: contact.Email}), nil
}

// Writes returns the absorbed creates in the order they were made
func (p *Planner) Writes() []PlannedWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlannedWrite, len(p.writes))
	copy(out, p.writes)
	return out
}

// MarkPlanned rewrites created outcomes that carry a synthetic id
func MarkPlanned(items []domain.ItemResult) {
	for i := range items {
		if items[i].Outcome == domain.OutcomeCreated && items[i].TargetID < 0 {
			items[i].Outcome = domain.OutcomePlanned
		}
	}
}
