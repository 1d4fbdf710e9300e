package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
)

// Write records one create call that reached a FakeEndpoint
type Write struct {
	Op       string // container, task, contact
	Kind     string
	Name     string
	ParentID *int64
	ID       int64
}

// FakeEndpoint is an in-memory Connector. It enforces sibling and task name
// uniqueness the way real endpoints do and records every successful create.
type FakeEndpoint struct {
	mu sync.Mutex

	info        connector.EndpointInfo
	nextID      int64
	containers  map[domain.ContainerKind][]domain.ContainerRecord
	hidden      map[int64]bool
	tasks       map[domain.TaskKind][]domain.TaskRecord
	policies    []domain.Policy
	contacts    []domain.Contact
	computers   []domain.Computer
	unsupported map[string]bool
	writes      []Write
	failCreate  map[string]error
	failList    map[string]error

	// CreateDelay is slept inside every create call, outside the lock
	CreateDelay time.Duration
}

var _ connector.Connector = (*FakeEndpoint)(nil)

// NewFakeEndpoint returns an empty endpoint
func NewFakeEndpoint(name string) *FakeEndpoint {
	return &FakeEndpoint{
		info:        connector.EndpointInfo{Name: name, Dialect: connector.DialectCloud, URL: "fake://" + name},
		nextID:      100,
		containers:  make(map[domain.ContainerKind][]domain.ContainerRecord),
		hidden:      make(map[int64]bool),
		tasks:       make(map[domain.TaskKind][]domain.TaskRecord),
		unsupported: make(map[string]bool),
		failCreate:  make(map[string]error),
		failList:    make(map[string]error),
	}
}

func (f *FakeEndpoint) allocID() int64 {
	f.nextID++
	return f.nextID
}

// AddContainer seeds a container; parentID 0 makes it a root
func (f *FakeEndpoint) AddContainer(kind domain.ContainerKind, name string, parentID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := domain.ContainerRecord{ID: f.allocID(), Name: name, Kind: kind}
	if parentID != 0 {
		rec.ParentID = domain.Int64Ptr(parentID)
	}
	f.containers[kind] = append(f.containers[kind], rec)
	return rec.ID
}

// AddRecord seeds a container record as given, keeping its id
func (f *FakeEndpoint) AddRecord(rec domain.ContainerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID > f.nextID {
		f.nextID = rec.ID
	}
	f.containers[rec.Kind] = append(f.containers[rec.Kind], rec)
}

// AddPath seeds every missing container along path and returns the leaf id
func (f *FakeEndpoint) AddPath(kind domain.ContainerKind, path ...string) int64 {
	var parent int64
	for _, name := range path {
		if id, ok := f.childID(kind, name, parent); ok {
			parent = id
			continue
		}
		parent = f.AddContainer(kind, name, parent)
	}
	return parent
}

func (f *FakeEndpoint) childID(kind domain.ContainerKind, name string, parent int64) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.containers[kind] {
		p := int64(0)
		if rec.ParentID != nil {
			p = *rec.ParentID
		}
		if rec.Name == name && p == parent {
			return rec.ID, true
		}
	}
	return 0, false
}

// Hide keeps a container out of listings while creates still collide with it
func (f *FakeEndpoint) Hide(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[id] = true
}

// AddTask seeds a task and returns its id
func (f *FakeEndpoint) AddTask(rec domain.TaskRecord) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.allocID()
	}
	f.tasks[rec.Kind] = append(f.tasks[rec.Kind], rec)
	return rec.ID
}

// AddPolicy seeds a policy; parentID 0 makes it a root
func (f *FakeEndpoint) AddPolicy(name string, parentID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := domain.Policy{ID: f.allocID(), Name: name}
	if parentID != 0 {
		p.ParentID = domain.Int64Ptr(parentID)
	}
	f.policies = append(f.policies, p)
	return p.ID
}

// AddContact seeds a contact
func (f *FakeEndpoint) AddContact(name, email, role string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := domain.Contact{ID: f.allocID(), Name: name, Email: email, Role: role}
	f.contacts = append(f.contacts, c)
	return c.ID
}

// AddComputer seeds a computer
func (f *FakeEndpoint) AddComputer(hostName, biosUUID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := domain.Computer{ID: f.allocID(), HostName: hostName, BIOSUUID: biosUUID}
	f.computers = append(f.computers, c)
	return c.ID
}

// FailCreate makes every create of an object with this name fail with err
func (f *FakeEndpoint) FailCreate(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate[name] = err
}

// FailList makes a listing fail; what is a container or task kind, or
// "policies", "contacts", "computers"
func (f *FakeEndpoint) FailList(what string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList[what] = err
}

// Unsupported marks a scheduled task type as refused
func (f *FakeEndpoint) Unsupported(taskType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsupported[taskType] = true
}

// Writes returns the successful creates in call order
func (f *FakeEndpoint) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Containers returns a copy of the stored containers, hidden ones included
func (f *FakeEndpoint) Containers(kind domain.ContainerKind) []domain.ContainerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContainerRecord(nil), f.containers[kind]...)
}

// Tasks returns a copy of the stored tasks
func (f *FakeEndpoint) Tasks(kind domain.TaskKind) []domain.TaskRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TaskRecord(nil), f.tasks[kind]...)
}

// Contacts returns a copy of the stored contacts
func (f *FakeEndpoint) Contacts() []domain.Contact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Contact(nil), f.contacts...)
}

func (f *FakeEndpoint) Info() connector.EndpointInfo {
	return f.info
}

func (f *FakeEndpoint) SupportsTaskType(kind domain.TaskKind, taskType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return kind != domain.TaskKindScheduled || !f.unsupported[taskType]
}

func (f *FakeEndpoint) listErr(what string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failList[what]
}

func (f *FakeEndpoint) beforeCreate(ctx context.Context, name string) error {
	if f.CreateDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.CreateDelay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failCreate[name]
}

func (f *FakeEndpoint) ListContainers(ctx context.Context, kind domain.ContainerKind) ([]domain.ContainerRecord, error) {
	if err := f.listErr(string(kind)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ContainerRecord
	for _, rec := range f.containers[kind] {
		if !f.hidden[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *FakeEndpoint) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (int64, error) {
	if err := f.beforeCreate(ctx, spec.Name); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if spec.ParentID != nil && !f.containerExists(spec.Kind, *spec.ParentID) {
		return 0, fmt.Errorf("parent %d: %w", *spec.ParentID, domain.ErrNotFound)
	}
	for _, rec := range f.containers[spec.Kind] {
		if rec.Name == spec.Name && sameParent(rec.ParentID, spec.ParentID) {
			return 0, &domain.DuplicateNameError{Object: string(spec.Kind), Name: spec.Name}
		}
	}

	rec := domain.ContainerRecord{
		ID:          f.allocID(),
		Name:        spec.Name,
		ParentID:    spec.ParentID,
		Kind:        spec.Kind,
		Description: spec.Description,
		RuleGroups:  spec.RuleGroups,
	}
	f.containers[spec.Kind] = append(f.containers[spec.Kind], rec)
	f.writes = append(f.writes, Write{Op: "container", Kind: string(spec.Kind), Name: spec.Name, ParentID: spec.ParentID, ID: rec.ID})
	return rec.ID, nil
}

func (f *FakeEndpoint) containerExists(kind domain.ContainerKind, id int64) bool {
	for _, rec := range f.containers[kind] {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *FakeEndpoint) FindContainer(ctx context.Context, kind domain.ContainerKind, name string, parentID *int64) (domain.ContainerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.containers[kind] {
		if rec.Name == name && sameParent(rec.ParentID, parentID) {
			return rec, nil
		}
	}
	return domain.ContainerRecord{}, fmt.Errorf("%s %q: %w", kind, name, domain.ErrNotFound)
}

func (f *FakeEndpoint) ListTasks(ctx context.Context, kind domain.TaskKind) ([]domain.TaskRecord, error) {
	if err := f.listErr(string(kind)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TaskRecord(nil), f.tasks[kind]...), nil
}

func (f *FakeEndpoint) CreateTask(ctx context.Context, task domain.TaskRecord) (int64, error) {
	if err := f.beforeCreate(ctx, task.Name); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.tasks[task.Kind] {
		if existing.Name == task.Name {
			return 0, &domain.DuplicateNameError{Object: string(task.Kind) + " task", Name: task.Name}
		}
	}
	task.ID = f.allocID()
	f.tasks[task.Kind] = append(f.tasks[task.Kind], task)
	f.writes = append(f.writes, Write{Op: "task", Kind: string(task.Kind), Name: task.Name, ID: task.ID})
	return task.ID, nil
}

func (f *FakeEndpoint) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	if err := f.listErr("policies"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Policy(nil), f.policies...), nil
}

func (f *FakeEndpoint) FindPolicy(ctx context.Context, name string) (domain.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Policy{}, fmt.Errorf("policy %q: %w", name, domain.ErrNotFound)
}

func (f *FakeEndpoint) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	if err := f.listErr("contacts"); err != nil {
		return nil, err
	}
	return f.Contacts(), nil
}

func (f *FakeEndpoint) FindContact(ctx context.Context, email string) (domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.Email == email {
			return c, nil
		}
	}
	return domain.Contact{}, fmt.Errorf("contact %q: %w", email, domain.ErrNotFound)
}

func (f *FakeEndpoint) CreateContact(ctx context.Context, contact domain.Contact) (int64, error) {
	if err := f.beforeCreate(ctx, contact.Email); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.contacts {
		if c.Email == contact.Email {
			return 0, &domain.DuplicateNameError{Object: "contact", Name: contact.Email}
		}
	}
	contact.ID = f.allocID()
	f.contacts = append(f.contacts, contact)
	f.writes = append(f.writes, Write{Op: "contact", Kind: contact.Role, Name: contact.Email, ID: contact.ID})
	return contact.ID, nil
}

func (f *FakeEndpoint) ListComputers(ctx context.Context) ([]domain.Computer, error) {
	if err := f.listErr("computers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Computer(nil), f.computers...), nil
}

func (f *FakeEndpoint) FindComputer(ctx context.Context, biosUUID string) (domain.Computer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.computers {
		if c.BIOSUUID == biosUUID {
			return c, nil
		}
	}
	return domain.Computer{}, fmt.Errorf("computer %q: %w", biosUUID, domain.ErrNotFound)
}
