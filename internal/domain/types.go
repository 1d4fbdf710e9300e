package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ContainerKind represents the type of container hierarchy
type ContainerKind string

const (
	ContainerKindGroup  ContainerKind = "group"
	ContainerKindFolder ContainerKind = "folder"
)

// TaskKind represents the type of automation task
type TaskKind string

const (
	TaskKindScheduled  TaskKind = "scheduled"
	TaskKindEventBased TaskKind = "event-based"
)

// ObjectKind names the kinds of objects a reference can point at
type ObjectKind string

const (
	ObjectGroup    ObjectKind = "group"
	ObjectFolder   ObjectKind = "folder"
	ObjectPolicy   ObjectKind = "policy"
	ObjectContact  ObjectKind = "contact"
	ObjectComputer ObjectKind = "computer"
)

// ObjectKindFor maps a container kind to its reference kind.
func ObjectKindFor(kind ContainerKind) ObjectKind {
	if kind == ContainerKindFolder {
		return ObjectFolder
	}
	return ObjectGroup
}

// RoleAuditor is the only contact role that may be provisioned on a target.
const RoleAuditor = "Auditor"

// Path is the ordered sequence of names from a forest root to a node.
// It is the identity of a container across endpoints.
type Path []string

// String renders the path with "/" separators
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Key returns a map key that cannot collide for names containing "/".
func (p Path) Key() string {
	return strings.Join(p, "\x00")
}

// Parent returns the path without its last element (nil for roots).
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)
	return append(child, name)
}

// Equal reports whether both paths have the same names in the same order.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ContainerRecord is a computer group or smart folder as listed by an endpoint
type ContainerRecord struct {
	ID          int64         `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	ParentID    *int64        `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Kind        ContainerKind `json:"kind" yaml:"kind"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	RuleGroups  []RuleGroup   `json:"rule_groups,omitempty" yaml:"rule_groups,omitempty"` // folders only
}

// ContainerSpec describes a container to create on a target endpoint
type ContainerSpec struct {
	Name        string        `json:"name"`
	ParentID    *int64        `json:"parent_id,omitempty"`
	Kind        ContainerKind `json:"kind"`
	Description string        `json:"description,omitempty"`
	RuleGroups  []RuleGroup   `json:"rule_groups,omitempty"`
}

// RuleGroup is one OR-ed group of smart folder rules
type RuleGroup struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Rule is a smart folder rule. Fields other than key and value are
// endpoint-defined and carried through unchanged.
type Rule map[string]any

// RuleKeyPolicy marks a rule whose value is a policy id.
const RuleKeyPolicy = "general-policy"

// Key returns the rule key
func (r Rule) Key() string {
	s, _ := r["key"].(string)
	return s
}

// Value returns the rule value rendered as a string
func (r Rule) Value() string {
	switch v := r["value"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

// WithValue returns a copy of the rule with its value replaced
func (r Rule) WithValue(value string) Rule {
	out := make(Rule, len(r))
	for k, v := range r {
		out[k] = v
	}
	out["value"] = value
	return out
}

// Policy is a security policy; only its identity matters here
type Policy struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	ParentID *int64 `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// Contact is a notification recipient
type Contact struct {
	ID    int64  `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
}

// Computer is a protected host; it is matched across endpoints by BIOS UUID
type Computer struct {
	ID       int64  `json:"id" yaml:"id"`
	HostName string `json:"host_name" yaml:"host_name"`
	BIOSUUID string `json:"bios_uuid" yaml:"bios_uuid"`
}

// ComputerFilter is a task scope expressed in endpoint-local ids
type ComputerFilter struct {
	Type            string `json:"type"`
	ComputerID      *int64 `json:"computer_id,omitempty"`
	ComputerGroupID *int64 `json:"computer_group_id,omitempty"`
	PolicyID        *int64 `json:"policy_id,omitempty"`
	SmartFolderID   *int64 `json:"smart_folder_id,omitempty"`
}

// Recipients are the notification targets of report and alert tasks
type Recipients struct {
	All              bool    `json:"all"`
	AdministratorIDs []int64 `json:"administrator_ids,omitempty"`
	ContactIDs       []int64 `json:"contact_ids,omitempty"`
}

// EventAction is one action of an event-based task
type EventAction struct {
	Type           string `json:"type"`
	ParameterValue *int64 `json:"parameter_value,omitempty"`
}

// Event-based action types with references
const (
	ActionAssignPolicy = "assign-policy"
	ActionAssignGroup  = "assign-group"
	ActionAssignRelay  = "assign-relay"
)

// TaskRecord is a scheduled or event-based task in endpoint-local ids.
// Trigger and Params are opaque to the migration core.
type TaskRecord struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Kind        TaskKind        `json:"kind"`
	Type        string          `json:"type,omitempty"`
	Enabled     bool            `json:"enabled"`
	Trigger     json.RawMessage `json:"trigger,omitempty"`
	ParamsKey   string          `json:"params_key,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Filter      *ComputerFilter `json:"filter,omitempty"`
	Recipients  *Recipients     `json:"recipients,omitempty"`
	SyncGroupID *int64          `json:"sync_group_id,omitempty"`
	Actions     []EventAction   `json:"actions,omitempty"`
}

// Scope is a task scope expressed in portable references
type Scope struct {
	Type         string `json:"type"`
	Group        Path   `json:"group,omitempty"`
	Folder       Path   `json:"folder,omitempty"`
	Policy       string `json:"policy,omitempty"`
	ComputerUUID string `json:"computer_uuid,omitempty"`
}

// ContactRef identifies a contact by role and email
type ContactRef struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// RecipientSpec is Recipients expressed in portable references
type RecipientSpec struct {
	All      bool         `json:"all"`
	Contacts []ContactRef `json:"contacts,omitempty"`
}

// ActionSpec is an EventAction expressed in portable references.
// Value carries the parameter of actions without a migratable reference.
type ActionSpec struct {
	Type   string `json:"type"`
	Policy string `json:"policy,omitempty"`
	Group  Path   `json:"group,omitempty"`
	Value  *int64 `json:"value,omitempty"`
}

// TaskDefinition is a task decoded from its source endpoint into
// endpoint-agnostic references.
type TaskDefinition struct {
	SourceID   int64           `json:"source_id"`
	Name       string          `json:"name"`
	Kind       TaskKind        `json:"kind"`
	Type       string          `json:"type,omitempty"`
	Enabled    bool            `json:"enabled"`
	Trigger    json.RawMessage `json:"trigger,omitempty"`
	ParamsKey  string          `json:"params_key,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Scope      *Scope          `json:"scope,omitempty"`
	SyncGroup  Path            `json:"sync_group,omitempty"`
	Recipients *RecipientSpec  `json:"recipients,omitempty"`
	Actions    []ActionSpec    `json:"actions,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// Outcome is the result of processing one item in a run
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomePlanned  Outcome = "planned"
)

// ItemResult records what happened to one container or task
type ItemResult struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Item     string   `json:"item" yaml:"item"`
	Outcome  Outcome  `json:"outcome" yaml:"outcome"`
	Reason   string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	SourceID int64    `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	TargetID int64    `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	Digest   string   `json:"digest,omitempty" yaml:"digest,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}
