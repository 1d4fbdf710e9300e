// Package resolve translates references between endpoints. Source-side
// ids are first decoded into portable names and paths (Source); those are
// then looked up, or for Auditor contacts created, on the target
// (Resolver). Every answer is memoized in the run's reference map.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/refmap"
)

// Resolver maps portable references to target ids
type Resolver struct {
	source       string
	target       connector.Connector
	refs         *refmap.Map
	policySuffix string
	logger       *slog.Logger
}

// Options configures a Resolver
type Options struct {
	// PolicySuffix is appended to source policy names before looking them up
	PolicySuffix string
	Logger       *slog.Logger
}

// New creates a resolver for references coming from the endpoint labelled source
func New(source string, target connector.Connector, refs *refmap.Map, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		source:       source,
		target:       target,
		refs:         refs,
		policySuffix: opts.PolicySuffix,
		logger:       logger,
	}
}

// Container returns the target id a merged source path was mapped to
func (r *Resolver) Container(kind domain.ContainerKind, path domain.Path) (int64, error) {
	if id, ok := r.refs.Get(refmap.ContainerKey(r.source, kind, path)); ok {
		return id, nil
	}
	return 0, &domain.ReferenceError{Kind: domain.ObjectKindFor(kind), Ref: path.String(), Err: domain.ErrUnresolvedReference}
}

// Policy returns the id of the target policy named name plus the suffix
func (r *Resolver) Policy(ctx context.Context, name string) (int64, error) {
	key := refmap.Key{Endpoint: r.source, Kind: domain.ObjectPolicy, Ref: name}
	return r.refs.GetOrCreate(key, func() (int64, error) {
		want := name + r.policySuffix
		policy, err := r.target.FindPolicy(ctx, want)
		if errors.Is(err, domain.ErrNotFound) {
			return 0, &domain.ReferenceError{Kind: domain.ObjectPolicy, Ref: want, Err: domain.ErrPolicyNotFound}
		}
		if err != nil {
			return 0, err
		}
		r.logger.Debug("policy resolved", "name", want, "target_id", policy.ID)
		return policy.ID, nil
	})
}

// Contact returns the target contact with the same email. A missing
// Auditor contact with a well-formed email is created; any other missing
// contact is not migratable.
func (r *Resolver) Contact(ctx context.Context, ref domain.ContactRef) (int64, error) {
	key := refmap.Key{Endpoint: r.source, Kind: domain.ObjectContact, Ref: ref.Email}
	return r.refs.GetOrCreate(key, func() (int64, error) {
		existing, err := r.target.FindContact(ctx, ref.Email)
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}

		if ref.Role != domain.RoleAuditor {
			return 0, &domain.ReferenceError{
				Kind: domain.ObjectContact,
				Ref:  ref.Email,
				Err:  fmt.Errorf("%w: role %q cannot be provisioned", domain.ErrContactNotMigratable, ref.Role),
			}
		}

		if err := domain.ValidateEmail(ref.Email); err != nil {
			return 0, &domain.ReferenceError{
				Kind: domain.ObjectContact,
				Ref:  ref.Email,
				Err:  fmt.Errorf("%w: %w", domain.ErrContactNotMigratable, err),
			}
		}

		id, err := r.target.CreateContact(ctx, domain.Contact{Name: ref.Name, Email: ref.Email, Role: domain.RoleAuditor})
		if errors.Is(err, domain.ErrDuplicateName) {
			existing, findErr := r.target.FindContact(ctx, ref.Email)
			if findErr != nil {
				return 0, err
			}
			return existing.ID, nil
		}
		if err != nil {
			return 0, err
		}
		r.logger.Info("created contact", "email", ref.Email, "role", domain.RoleAuditor, "target_id", id)
		return id, nil
	})
}

// Computer returns the target computer with the same BIOS UUID
func (r *Resolver) Computer(ctx context.Context, biosUUID string) (int64, error) {
	key := refmap.Key{Endpoint: r.source, Kind: domain.ObjectComputer, Ref: biosUUID}
	return r.refs.GetOrCreate(key, func() (int64, error) {
		computer, err := r.target.FindComputer(ctx, biosUUID)
		if errors.Is(err, domain.ErrNotFound) {
			return 0, &domain.ReferenceError{Kind: domain.ObjectComputer, Ref: biosUUID, Err: domain.ErrUnresolvedReference}
		}
		if err != nil {
			return 0, err
		}
		return computer.ID, nil
	})
}
