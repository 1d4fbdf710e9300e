package resolve

import (
	"context"
	"fmt"
	"sync"

	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/tree"
)

// Source answers "what is id N called" for one endpoint. Catalogs other
// than the container trees are listed on first use, each under its own lock.
type Source struct {
	conn    connector.Connector
	groups  *tree.Tree
	folders *tree.Tree

	policies  catalog[domain.Policy]
	contacts  catalog[domain.Contact]
	computers catalog[domain.Computer]
}

// catalog is one lazily listed id index. A failed listing is retried by the
// next caller.
type catalog[T any] struct {
	mu    sync.Mutex
	items map[int64]T
}

func (c *catalog[T]) get(ctx context.Context, id int64, list func(context.Context) ([]T, error), key func(T) int64) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		all, err := list(ctx)
		if err != nil {
			var zero T
			return zero, false, err
		}
		c.items = make(map[int64]T, len(all))
		for _, item := range all {
			c.items[key(item)] = item
		}
	}
	item, ok := c.items[id]
	return item, ok, nil
}

// NewSource wraps an endpoint and its already built container trees;
// either tree may be nil when that kind was not loaded
func NewSource(conn connector.Connector, groups, folders *tree.Tree) *Source {
	return &Source{conn: conn, groups: groups, folders: folders}
}

// Label identifies the endpoint in reference map keys
func (s *Source) Label() string {
	return s.conn.Info().Label()
}

// ContainerPath returns the path of a source group or folder id
func (s *Source) ContainerPath(kind domain.ContainerKind, id int64) (domain.Path, error) {
	t := s.groups
	if kind == domain.ContainerKindFolder {
		t = s.folders
	}
	ref := fmt.Sprintf("id %d", id)
	if t == nil {
		return nil, &domain.ReferenceError{Kind: domain.ObjectKindFor(kind), Ref: ref, Err: domain.ErrUnresolvedReference}
	}
	path, err := t.PathOf(id)
	if err != nil {
		return nil, &domain.ReferenceError{Kind: domain.ObjectKindFor(kind), Ref: ref, Err: domain.ErrUnresolvedReference}
	}
	return path, nil
}

// Policy returns the source policy with the given id
func (s *Source) Policy(ctx context.Context, id int64) (domain.Policy, error) {
	p, ok, err := s.policies.get(ctx, id, s.conn.ListPolicies, func(p domain.Policy) int64 { return p.ID })
	if err != nil {
		return domain.Policy{}, domain.Structural("list source policies", err)
	}
	if !ok {
		return domain.Policy{}, &domain.ReferenceError{Kind: domain.ObjectPolicy, Ref: fmt.Sprintf("id %d", id), Err: domain.ErrPolicyNotFound}
	}
	return p, nil
}

// Contact returns the source contact with the given id
func (s *Source) Contact(ctx context.Context, id int64) (domain.Contact, error) {
	c, ok, err := s.contacts.get(ctx, id, s.conn.ListContacts, func(c domain.Contact) int64 { return c.ID })
	if err != nil {
		return domain.Contact{}, domain.Structural("list source contacts", err)
	}
	if !ok {
		return domain.Contact{}, &domain.ReferenceError{Kind: domain.ObjectContact, Ref: fmt.Sprintf("id %d", id), Err: domain.ErrNotFound}
	}
	return c, nil
}

// Computer returns the source computer with the given id
func (s *Source) Computer(ctx context.Context, id int64) (domain.Computer, error) {
	c, ok, err := s.computers.get(ctx, id, s.conn.ListComputers, func(c domain.Computer) int64 { return c.ID })
	if err != nil {
		return domain.Computer{}, domain.Structural("list source computers", err)
	}
	if !ok || c.BIOSUUID == "" {
		return domain.Computer{}, &domain.ReferenceError{Kind: domain.ObjectComputer, Ref: fmt.Sprintf("id %d", id), Err: domain.ErrUnresolvedReference}
	}
	return c, nil
}

func scopeErr(err error) error {
	if domain.IsStructural(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUnresolvedScope, err)
}

// Decode re-expresses a source task in portable references. Errors carry
// the reason the task cannot migrate; Warnings list parts that were dropped.
func (s *Source) Decode(ctx context.Context, rec domain.TaskRecord) (domain.TaskDefinition, error) {
	def := domain.TaskDefinition{
		SourceID:  rec.ID,
		Name:      rec.Name,
		Kind:      rec.Kind,
		Type:      rec.Type,
		Enabled:   rec.Enabled,
		Trigger:   rec.Trigger,
		ParamsKey: rec.ParamsKey,
		Params:    rec.Params,
	}

	if f := rec.Filter; f != nil {
		scope := &domain.Scope{Type: f.Type}
		if f.ComputerGroupID != nil {
			path, err := s.ContainerPath(domain.ContainerKindGroup, *f.ComputerGroupID)
			if err != nil {
				return def, scopeErr(err)
			}
			scope.Group = path
		}
		if f.SmartFolderID != nil {
			path, err := s.ContainerPath(domain.ContainerKindFolder, *f.SmartFolderID)
			if err != nil {
				return def, scopeErr(err)
			}
			scope.Folder = path
		}
		if f.PolicyID != nil {
			p, err := s.Policy(ctx, *f.PolicyID)
			if err != nil {
				return def, err
			}
			scope.Policy = p.Name
		}
		if f.ComputerID != nil {
			c, err := s.Computer(ctx, *f.ComputerID)
			if err != nil {
				return def, scopeErr(err)
			}
			scope.ComputerUUID = c.BIOSUUID
		}
		def.Scope = scope
	}

	if rec.SyncGroupID != nil {
		path, err := s.ContainerPath(domain.ContainerKindGroup, *rec.SyncGroupID)
		if err != nil {
			return def, scopeErr(err)
		}
		def.SyncGroup = path
	}

	if r := rec.Recipients; r != nil {
		spec := &domain.RecipientSpec{All: r.All}
		if len(r.AdministratorIDs) > 0 {
			def.Warnings = append(def.Warnings, fmt.Sprintf("administrator recipients %v are not migrated", r.AdministratorIDs))
		}
		for _, id := range r.ContactIDs {
			c, err := s.Contact(ctx, id)
			if err != nil {
				if domain.IsStructural(err) {
					return def, err
				}
				def.Warnings = append(def.Warnings, fmt.Sprintf("contact id %d dropped: %v", id, err))
				continue
			}
			spec.Contacts = append(spec.Contacts, domain.ContactRef{Name: c.Name, Email: c.Email, Role: c.Role})
		}
		def.Recipients = spec
	}

	for _, a := range rec.Actions {
		action := domain.ActionSpec{Type: a.Type}
		switch {
		case a.ParameterValue == nil:
		case a.Type == domain.ActionAssignPolicy:
			p, err := s.Policy(ctx, *a.ParameterValue)
			if err != nil {
				return def, err
			}
			action.Policy = p.Name
		case a.Type == domain.ActionAssignGroup:
			path, err := s.ContainerPath(domain.ContainerKindGroup, *a.ParameterValue)
			if err != nil {
				return def, scopeErr(err)
			}
			action.Group = path
		case a.Type == domain.ActionAssignRelay:
			def.Warnings = append(def.Warnings, "relay group assignment dropped: relay groups are not migrated")
		default:
			action.Value = a.ParameterValue
		}
		def.Actions = append(def.Actions, action)
	}

	return def, nil
}
