package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrInvalidTree          = errors.New("invalid container tree")
	ErrCycleDetected        = errors.New("cycle detected")
	ErrUnresolvedReference  = errors.New("unresolved reference")
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrContactNotMigratable = errors.New("contact not migratable")
	ErrUnresolvedScope      = errors.New("unresolved scope")
	ErrNameCollision        = errors.New("name collision")
	ErrUnsupported          = errors.New("unsupported")
	ErrValidation           = errors.New("rejected by endpoint")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnavailable          = errors.New("endpoint unavailable")
)

// CycleError is returned when a container's ancestry loops back on itself
type CycleError struct {
	Kind   ContainerKind
	NodeID int64
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in %s tree at node %d", e.Kind, e.NodeID)
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected || target == ErrInvalidTree
}

// OrphanError is returned when a container names a parent that does not exist
type OrphanError struct {
	Kind     ContainerKind
	NodeID   int64
	ParentID int64
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("%s %d references missing parent %d", e.Kind, e.NodeID, e.ParentID)
}

func (e *OrphanError) Is(target error) bool {
	return target == ErrInvalidTree
}

// DuplicateSiblingError is returned when two siblings share a name
type DuplicateSiblingError struct {
	Kind ContainerKind
	Path Path
	IDs  []int64
}

func (e *DuplicateSiblingError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("duplicate %s %q (ids %s)", e.Kind, e.Path.String(), strings.Join(ids, ", "))
}

func (e *DuplicateSiblingError) Is(target error) bool {
	return target == ErrInvalidTree
}

// DuplicateNameError is returned by an endpoint that refused a create
// because the name is already taken
type DuplicateNameError struct {
	Object string
	Name   string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s named %q already exists", e.Object, e.Name)
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}

// ReferenceError is returned when a reference cannot be translated to the target
type ReferenceError struct {
	Kind ObjectKind
	Ref  string
	Err  error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Ref, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// CollisionError is returned for source tasks that share an effective name
type CollisionError struct {
	Name      string
	SourceIDs []int64
}

func (e *CollisionError) Error() string {
	ids := make([]string, len(e.SourceIDs))
	for i, id := range e.SourceIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("effective name %q is shared by source tasks %s", e.Name, strings.Join(ids, ", "))
}

func (e *CollisionError) Unwrap() error {
	return ErrNameCollision
}

// StructuralError aborts a whole run: configuration, connectivity, or
// untrusted input that violates a tree invariant.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Structural wraps err as a StructuralError (nil stays nil)
func Structural(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StructuralError{Op: op, Err: err}
}

// IsStructural reports whether err must abort the run
func IsStructural(err error) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return true
	}
	return errors.Is(err, ErrInvalidTree) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnavailable)
}

// Reason returns a short label for an item failure, used to group the
// end-of-run summary.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNameCollision):
		return "NameCollision"
	case errors.Is(err, ErrUnresolvedScope):
		return "UnresolvedScope"
	case errors.Is(err, ErrPolicyNotFound):
		return "PolicyNotFound"
	case errors.Is(err, ErrContactNotMigratable):
		return "ContactNotMigratable"
	case errors.Is(err, ErrUnresolvedReference):
		return "UnresolvedReference"
	case errors.Is(err, ErrDuplicateName):
		return "DuplicateName"
	case errors.Is(err, ErrUnsupported):
		return "Unsupported"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrValidation):
		return "Rejected"
	default:
		return "Error"
	}
}
