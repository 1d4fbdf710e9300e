package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lherron/aiomigrate/internal/domain"
)

// ListContainers returns every group or folder, minus cloud account groups
func (c *Client) ListContainers(ctx context.Context, kind domain.ContainerKind) ([]domain.ContainerRecord, error) {
	res, _, err := containerResource(kind)
	if err != nil {
		return nil, err
	}

	var out []domain.ContainerRecord
	err = c.listAll(ctx, res.path, res.key, func(raw json.RawMessage) error {
		var w wireContainer
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("failed to decode %s: %w", kind, err)
		}
		if w.cloudAccount() {
			return nil
		}
		out = append(out, w.record(kind))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
	}
	c.logger.Debug("listed containers", "kind", kind, "count", len(out))
	return out, nil
}

// CreateContainer creates a group or folder and returns its id
func (c *Client) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (int64, error) {
	res, _, err := containerResource(spec.Kind)
	if err != nil {
		return 0, err
	}
	id, err := c.create(ctx, res.path, containerPayload(spec))
	if err != nil {
		return 0, fmt.Errorf("failed to create %s %q: %w", spec.Kind, spec.Name, err)
	}
	return id, nil
}

// FindContainer looks up a container by name under parentID (nil for roots)
func (c *Client) FindContainer(ctx context.Context, kind domain.ContainerKind, name string, parentID *int64) (domain.ContainerRecord, error) {
	res, parentField, err := containerResource(kind)
	if err != nil {
		return domain.ContainerRecord{}, err
	}

	criteria := []searchCriterion{nameEquals("name", name)}
	maxItems := 2
	if parentID != nil {
		criteria = append(criteria, numberEquals(parentField, *parentID))
	} else {
		// No criterion selects roots, so fetch every namesake and filter
		maxItems = pageSize
	}

	items, err := c.search(ctx, res.path, res.key, searchRequest{MaxItems: maxItems, SearchCriteria: criteria, SortByObjectID: true})
	if err != nil {
		return domain.ContainerRecord{}, fmt.Errorf("failed to find %s %q: %w", kind, name, err)
	}

	var matches []domain.ContainerRecord
	for _, raw := range items {
		var w wireContainer
		if err := json.Unmarshal(raw, &w); err != nil {
			return domain.ContainerRecord{}, fmt.Errorf("failed to decode %s: %w", kind, err)
		}
		rec := w.record(kind)
		if w.cloudAccount() || rec.Name != name || !sameParent(rec.ParentID, parentID) {
			continue
		}
		matches = append(matches, rec)
	}

	switch len(matches) {
	case 0:
		return domain.ContainerRecord{}, fmt.Errorf("%s %q: %w", kind, name, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return domain.ContainerRecord{}, fmt.Errorf("%s %q matches %d siblings: %w", kind, name, len(matches), domain.ErrDuplicateName)
	}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ListTasks returns every scheduled or event-based task
func (c *Client) ListTasks(ctx context.Context, kind domain.TaskKind) ([]domain.TaskRecord, error) {
	res, err := taskResource(kind)
	if err != nil {
		return nil, err
	}

	var out []domain.TaskRecord
	err = c.listAll(ctx, res.path, res.key, func(raw json.RawMessage) error {
		rec, err := decodeTask(kind, raw)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tasks: %w", kind, err)
	}
	c.logger.Debug("listed tasks", "kind", kind, "count", len(out))
	return out, nil
}

// CreateTask creates a task from a record whose ids are already target ids
func (c *Client) CreateTask(ctx context.Context, task domain.TaskRecord) (int64, error) {
	res, err := taskResource(task.Kind)
	if err != nil {
		return 0, err
	}
	payload, err := encodeTask(task)
	if err != nil {
		return 0, err
	}
	id, err := c.create(ctx, res.path, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s task %q: %w", task.Kind, task.Name, err)
	}
	return id, nil
}

// ListPolicies returns every policy
func (c *Client) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	var out []domain.Policy
	err := c.listAll(ctx, resPolicies.path, resPolicies.key, func(raw json.RawMessage) error {
		var w wirePolicy
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("failed to decode policy: %w", err)
		}
		out = append(out, domain.Policy{ID: w.ID, Name: w.Name, ParentID: w.ParentID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return out, nil
}

// FindPolicy looks up a policy by exact name
func (c *Client) FindPolicy(ctx context.Context, name string) (domain.Policy, error) {
	items, err := c.search(ctx, resPolicies.path, resPolicies.key, searchRequest{
		MaxItems:       2,
		SearchCriteria: []searchCriterion{nameEquals("name", name)},
		SortByObjectID: true,
	})
	if err != nil {
		return domain.Policy{}, fmt.Errorf("failed to find policy %q: %w", name, err)
	}
	for _, raw := range items {
		var w wirePolicy
		if err := json.Unmarshal(raw, &w); err != nil {
			return domain.Policy{}, fmt.Errorf("failed to decode policy: %w", err)
		}
		if w.Name == name {
			return domain.Policy{ID: w.ID, Name: w.Name, ParentID: w.ParentID}, nil
		}
	}
	return domain.Policy{}, fmt.Errorf("policy %q: %w", name, domain.ErrNotFound)
}

// ListContacts returns every contact with its role name resolved
func (c *Client) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	roles, err := c.listRoles(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Contact
	err = c.listAll(ctx, resContacts.path, resContacts.key, func(raw json.RawMessage) error {
		var w wireContact
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("failed to decode contact: %w", err)
		}
		out = append(out, contactFromWire(w, roles))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return out, nil
}

func contactFromWire(w wireContact, roles []wireRole) domain.Contact {
	contact := domain.Contact{ID: w.ID, Name: w.Name, Email: w.EmailAddress}
	if w.RoleID != nil {
		for _, r := range roles {
			if r.ID == *w.RoleID {
				contact.Role = r.label()
				break
			}
		}
	}
	return contact
}

// FindContact looks up a contact by email address
func (c *Client) FindContact(ctx context.Context, email string) (domain.Contact, error) {
	items, err := c.search(ctx, resContacts.path, resContacts.key, searchRequest{
		MaxItems:       2,
		SearchCriteria: []searchCriterion{nameEquals("emailAddress", email)},
		SortByObjectID: true,
	})
	if err != nil {
		return domain.Contact{}, fmt.Errorf("failed to find contact %q: %w", email, err)
	}
	for _, raw := range items {
		var w wireContact
		if err := json.Unmarshal(raw, &w); err != nil {
			return domain.Contact{}, fmt.Errorf("failed to decode contact: %w", err)
		}
		if w.EmailAddress == email {
			roles, err := c.listRoles(ctx)
			if err != nil {
				return domain.Contact{}, err
			}
			return contactFromWire(w, roles), nil
		}
	}
	return domain.Contact{}, fmt.Errorf("contact %q: %w", email, domain.ErrNotFound)
}

// CreateContact creates a contact holding the named role
func (c *Client) CreateContact(ctx context.Context, contact domain.Contact) (int64, error) {
	roleID, err := c.roleID(ctx, contact.Role)
	if err != nil {
		return 0, err
	}
	name := contact.Name
	if name == "" {
		name = contact.Email
	}
	id, err := c.create(ctx, resContacts.path, wireContact{Name: name, EmailAddress: contact.Email, RoleID: &roleID})
	if err != nil {
		return 0, fmt.Errorf("failed to create contact %q: %w", contact.Email, err)
	}
	return id, nil
}

func (c *Client) listRoles(ctx context.Context) ([]wireRole, error) {
	c.rolesMu.Lock()
	defer c.rolesMu.Unlock()
	if c.roles != nil {
		return c.roles, nil
	}

	roles := []wireRole{}
	err := c.listAll(ctx, resRoles.path, resRoles.key, func(raw json.RawMessage) error {
		var w wireRole
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("failed to decode role: %w", err)
		}
		roles = append(roles, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	c.roles = roles
	return roles, nil
}

func (c *Client) roleID(ctx context.Context, name string) (int64, error) {
	roles, err := c.listRoles(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range roles {
		if r.Name == name || r.V1RoleName == name {
			return r.ID, nil
		}
	}
	return 0, fmt.Errorf("role %q: %w", name, domain.ErrNotFound)
}

// ListComputers returns every computer
func (c *Client) ListComputers(ctx context.Context) ([]domain.Computer, error) {
	var out []domain.Computer
	err := c.listAll(ctx, resComputers.path, resComputers.key, func(raw json.RawMessage) error {
		var w wireComputer
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("failed to decode computer: %w", err)
		}
		out = append(out, domain.Computer{ID: w.ID, HostName: w.HostName, BIOSUUID: w.BIOSUUID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list computers: %w", err)
	}
	return out, nil
}

// FindComputer looks up a computer by BIOS UUID
func (c *Client) FindComputer(ctx context.Context, biosUUID string) (domain.Computer, error) {
	items, err := c.search(ctx, resComputers.path, resComputers.key, searchRequest{
		MaxItems:       2,
		SearchCriteria: []searchCriterion{nameEquals("biosUUID", biosUUID)},
		SortByObjectID: true,
	})
	if err != nil {
		return domain.Computer{}, fmt.Errorf("failed to find computer %q: %w", biosUUID, err)
	}
	for _, raw := range items {
		var w wireComputer
		if err := json.Unmarshal(raw, &w); err != nil {
			return domain.Computer{}, fmt.Errorf("failed to decode computer: %w", err)
		}
		if w.BIOSUUID == biosUUID {
			return domain.Computer{ID: w.ID, HostName: w.HostName, BIOSUUID: w.BIOSUUID}, nil
		}
	}
	return domain.Computer{}, fmt.Errorf("computer %q: %w", biosUUID, domain.ErrNotFound)
}
