package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lherron/aiomigrate/internal/domain"
)

type resource struct {
	path string
	key  string
}

var (
	resGroups    = resource{"computergroups", "computerGroups"}
	resFolders   = resource{"smartfolders", "smartFolders"}
	resScheduled = resource{"scheduledtasks", "scheduledTasks"}
	resEvent     = resource{"eventbasedtasks", "eventBasedTasks"}
	resPolicies  = resource{"policies", "policies"}
	resContacts  = resource{"contacts", "contacts"}
	resRoles     = resource{"roles", "roles"}
	resComputers = resource{"computers", "computers"}
)

func containerResource(kind domain.ContainerKind) (resource, string, error) {
	switch kind {
	case domain.ContainerKindGroup:
		return resGroups, "parentGroupID", nil
	case domain.ContainerKindFolder:
		return resFolders, "parentSmartFolderID", nil
	default:
		return resource{}, "", domain.ValidateContainerKind(string(kind))
	}
}

func taskResource(kind domain.TaskKind) (resource, error) {
	switch kind {
	case domain.TaskKindScheduled:
		return resScheduled, nil
	case domain.TaskKindEventBased:
		return resEvent, nil
	default:
		return resource{}, domain.ValidateTaskKind(string(kind))
	}
}

type wireContainer struct {
	ID                  int64              `json:"ID,omitempty"`
	Name                string             `json:"name"`
	Description         string             `json:"description,omitempty"`
	ParentGroupID       *int64             `json:"parentGroupID,omitempty"`
	ParentSmartFolderID *int64             `json:"parentSmartFolderID,omitempty"`
	RuleGroups          []domain.RuleGroup `json:"ruleGroups,omitempty"`
	CloudType           string             `json:"cloudType,omitempty"`
	Type                string             `json:"type,omitempty"`
}

// cloudAccount reports groups that mirror a cloud provider account; they
// are managed by the provider sync and never migrated
func (w wireContainer) cloudAccount() bool {
	return w.CloudType != "" || w.Type == "aws-account"
}

func (w wireContainer) record(kind domain.ContainerKind) domain.ContainerRecord {
	rec := domain.ContainerRecord{
		ID:          w.ID,
		Name:        w.Name,
		Kind:        kind,
		Description: w.Description,
	}
	if kind == domain.ContainerKindGroup {
		rec.ParentID = w.ParentGroupID
	} else {
		rec.ParentID = w.ParentSmartFolderID
		rec.RuleGroups = w.RuleGroups
	}
	return rec
}

func containerPayload(spec domain.ContainerSpec) wireContainer {
	w := wireContainer{Name: spec.Name, Description: spec.Description}
	if spec.Kind == domain.ContainerKindGroup {
		w.ParentGroupID = spec.ParentID
	} else {
		w.ParentSmartFolderID = spec.ParentID
		w.RuleGroups = spec.RuleGroups
	}
	return w
}

type wirePolicy struct {
	ID       int64  `json:"ID"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentID,omitempty"`
}

type wireContact struct {
	ID           int64  `json:"ID,omitempty"`
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress,omitempty"`
	RoleID       *int64 `json:"roleID,omitempty"`
}

type wireRole struct {
	ID         int64  `json:"ID"`
	Name       string `json:"name"`
	V1RoleName string `json:"v1RoleName,omitempty"`
}

// label returns the role name used for migration decisions; cloud roles
// carry the legacy name separately
func (r wireRole) label() string {
	if r.V1RoleName == domain.RoleAuditor {
		return domain.RoleAuditor
	}
	return r.Name
}

type wireComputer struct {
	ID       int64  `json:"ID"`
	HostName string `json:"hostName"`
	BIOSUUID string `json:"biosUUID"`
}

type wireFilter struct {
	Type            string `json:"type"`
	ComputerID      *int64 `json:"computerID,omitempty"`
	ComputerGroupID *int64 `json:"computerGroupID,omitempty"`
	PolicyID        *int64 `json:"policyID,omitempty"`
	SmartFolderID   *int64 `json:"smartFolderID,omitempty"`
}

type wireRecipients struct {
	All              bool    `json:"allAdministratorsAndContacts"`
	AdministratorIDs []int64 `json:"administratorIDs,omitempty"`
	ContactIDs       []int64 `json:"contactIDs,omitempty"`
}

type wireAction struct {
	Type           string `json:"type"`
	ParameterValue *int64 `json:"parameterValue,omitempty"`
}

// Fields of a task object that are decoded into TaskRecord; everything
// else travels through Trigger unchanged.
var taskCoreFields = []string{"ID", "name", "type", "enabled", "actions"}

func decodeTask(kind domain.TaskKind, raw json.RawMessage) (domain.TaskRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("failed to decode %s task: %w", kind, err)
	}

	var core struct {
		ID      int64        `json:"ID"`
		Name    string       `json:"name"`
		Type    string       `json:"type"`
		Enabled bool         `json:"enabled"`
		Actions []wireAction `json:"actions"`
	}
	if err := json.Unmarshal(raw, &core); err != nil {
		return domain.TaskRecord{}, fmt.Errorf("failed to decode %s task: %w", kind, err)
	}

	rec := domain.TaskRecord{
		ID:      core.ID,
		Name:    core.Name,
		Kind:    kind,
		Type:    core.Type,
		Enabled: core.Enabled,
	}
	for _, f := range taskCoreFields {
		delete(fields, f)
	}

	if kind == domain.TaskKindScheduled {
		key, params := parametersBlock(fields)
		if key != "" {
			delete(fields, key)
			rec.ParamsKey = key
			rec.Params = params
			if err := decodeParams(&rec); err != nil {
				return domain.TaskRecord{}, err
			}
		}
	} else {
		for _, a := range core.Actions {
			rec.Actions = append(rec.Actions, domain.EventAction{Type: a.Type, ParameterValue: a.ParameterValue})
		}
	}

	trigger, err := json.Marshal(fields)
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("failed to encode trigger: %w", err)
	}
	rec.Trigger = trigger
	return rec, nil
}

// parametersBlock finds the single type-specific parameter object, named
// like scanForMalwareTaskParameters or installV1AgentParameters
func parametersBlock(fields map[string]json.RawMessage) (string, json.RawMessage) {
	for key, value := range fields {
		if !strings.HasSuffix(key, "Parameters") {
			continue
		}
		trimmed := strings.TrimSpace(string(value))
		if strings.HasPrefix(trimmed, "{") {
			return key, value
		}
	}
	return "", nil
}

func decodeParams(rec *domain.TaskRecord) error {
	var params struct {
		ComputerFilter  *wireFilter     `json:"computerFilter"`
		Recipients      *wireRecipients `json:"recipients"`
		ComputerGroupID *int64          `json:"computerGroupID"`
	}
	if err := json.Unmarshal(rec.Params, &params); err != nil {
		return fmt.Errorf("failed to decode %s: %w", rec.ParamsKey, err)
	}
	if f := params.ComputerFilter; f != nil {
		rec.Filter = &domain.ComputerFilter{
			Type:            f.Type,
			ComputerID:      f.ComputerID,
			ComputerGroupID: f.ComputerGroupID,
			PolicyID:        f.PolicyID,
			SmartFolderID:   f.SmartFolderID,
		}
	}
	if r := params.Recipients; r != nil {
		rec.Recipients = &domain.Recipients{
			All:              r.All,
			AdministratorIDs: r.AdministratorIDs,
			ContactIDs:       r.ContactIDs,
		}
	}
	rec.SyncGroupID = params.ComputerGroupID
	return nil
}

// encodeTask rebuilds the endpoint object: the carried-through fields,
// then the core fields, then the parameter block with ids substituted
func encodeTask(task domain.TaskRecord) (map[string]any, error) {
	out := map[string]any{}
	if len(task.Trigger) > 0 {
		if err := json.Unmarshal(task.Trigger, &out); err != nil {
			return nil, fmt.Errorf("failed to decode trigger: %w", err)
		}
	}
	delete(out, "ID")

	out["name"] = task.Name
	out["enabled"] = task.Enabled
	if task.Type != "" {
		out["type"] = task.Type
	}

	if task.Kind == domain.TaskKindEventBased {
		actions := make([]wireAction, 0, len(task.Actions))
		for _, a := range task.Actions {
			actions = append(actions, wireAction{Type: a.Type, ParameterValue: a.ParameterValue})
		}
		out["actions"] = actions
		return out, nil
	}

	if task.ParamsKey == "" {
		return out, nil
	}
	params := map[string]any{}
	if len(task.Params) > 0 {
		if err := json.Unmarshal(task.Params, &params); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", task.ParamsKey, err)
		}
	}
	if f := task.Filter; f != nil {
		params["computerFilter"] = wireFilter{
			Type:            f.Type,
			ComputerID:      f.ComputerID,
			ComputerGroupID: f.ComputerGroupID,
			PolicyID:        f.PolicyID,
			SmartFolderID:   f.SmartFolderID,
		}
	}
	if r := task.Recipients; r != nil {
		params["recipients"] = wireRecipients{
			All:              r.All,
			AdministratorIDs: r.AdministratorIDs,
			ContactIDs:       r.ContactIDs,
		}
	}
	if task.SyncGroupID != nil {
		params["computerGroupID"] = *task.SyncGroupID
	} else {
		delete(params, "computerGroupID")
	}
	out[task.ParamsKey] = params
	return out, nil
}
