package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/lherron/aiomigrate/internal/domain"
)

// build resolves every reference of a decoded task against the target and
// returns the record to create. Contacts that cannot be resolved are
// omitted and reported as warnings.
func (e *Engine) build(ctx context.Context, def domain.TaskDefinition, name string) (domain.TaskRecord, []string, error) {
	rec := domain.TaskRecord{
		Name:      name,
		Kind:      def.Kind,
		Type:      def.Type,
		Enabled:   def.Enabled,
		Trigger:   def.Trigger,
		ParamsKey: def.ParamsKey,
		Params:    def.Params,
	}
	var warnings []string

	if def.Scope != nil {
		filter, err := e.filter(ctx, def.Scope)
		if err != nil {
			return rec, warnings, err
		}
		rec.Filter = filter
	}

	if def.SyncGroup != nil {
		id, err := e.resolver.Container(domain.ContainerKindGroup, def.SyncGroup)
		if err != nil {
			return rec, warnings, unresolvedScope(err)
		}
		rec.SyncGroupID = &id
	}

	if r := def.Recipients; r != nil {
		recipients := &domain.Recipients{All: r.All}
		for _, contact := range r.Contacts {
			id, err := e.resolver.Contact(ctx, contact)
			if err != nil {
				if domain.IsStructural(err) {
					return rec, warnings, err
				}
				warnings = append(warnings, fmt.Sprintf("contact %s omitted: %v", contact.Email, err))
				e.logger.Warn("contact omitted", "task", name, "email", contact.Email, "reason", domain.Reason(err), "error", err)
				continue
			}
			recipients.ContactIDs = append(recipients.ContactIDs, id)
		}
		rec.Recipients = recipients
	}

	for _, a := range def.Actions {
		action := domain.EventAction{Type: a.Type, ParameterValue: a.Value}
		switch {
		case a.Policy != "":
			id, err := e.resolver.Policy(ctx, a.Policy)
			if err != nil {
				return rec, warnings, err
			}
			action.ParameterValue = &id
		case a.Group != nil:
			id, err := e.resolver.Container(domain.ContainerKindGroup, a.Group)
			if err != nil {
				return rec, warnings, err
			}
			action.ParameterValue = &id
		}
		rec.Actions = append(rec.Actions, action)
	}

	return rec, warnings, nil
}

// filter resolves a task scope. Missing containers and computers make the
// scope unresolved; a missing policy is reported as such.
func (e *Engine) filter(ctx context.Context, scope *domain.Scope) (*domain.ComputerFilter, error) {
	filter := &domain.ComputerFilter{Type: scope.Type}
	if scope.Group != nil {
		id, err := e.resolver.Container(domain.ContainerKindGroup, scope.Group)
		if err != nil {
			return nil, unresolvedScope(err)
		}
		filter.ComputerGroupID = &id
	}
	if scope.Folder != nil {
		id, err := e.resolver.Container(domain.ContainerKindFolder, scope.Folder)
		if err != nil {
			return nil, unresolvedScope(err)
		}
		filter.SmartFolderID = &id
	}
	if scope.Policy != "" {
		id, err := e.resolver.Policy(ctx, scope.Policy)
		if err != nil {
			return nil, err
		}
		filter.PolicyID = &id
	}
	if scope.ComputerUUID != "" {
		id, err := e.resolver.Computer(ctx, scope.ComputerUUID)
		if err != nil {
			return nil, unresolvedScope(err)
		}
		filter.ComputerID = &id
	}
	return filter, nil
}

func unresolvedScope(err error) error {
	if domain.IsStructural(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUnresolvedScope, err)
}

// Digest returns the hex sha256 of the JCS canonical JSON form of v
func Digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
