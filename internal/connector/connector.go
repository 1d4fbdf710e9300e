// Package connector talks to security management endpoints. Both the
// legacy on-premise manager and its cloud successor expose the same REST
// resources; the differences are isolated in a Dialect.
package connector

import (
	"context"

	"github.com/lherron/aiomigrate/internal/domain"
)

// EndpointInfo identifies a configured endpoint
type EndpointInfo struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Dialect string `json:"type" yaml:"type"`
	URL     string `json:"url" yaml:"url"`
	Key     string `json:"api_key" yaml:"api_key"` // masked
}

// Label returns a short identifier for logs and reference map keys
func (e EndpointInfo) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.URL
}

// Connector is the capability set the migration engines consume.
// Listing calls return every object; Find calls return an error wrapping
// domain.ErrNotFound when nothing matches.
type Connector interface {
	Info() EndpointInfo

	ListContainers(ctx context.Context, kind domain.ContainerKind) ([]domain.ContainerRecord, error)
	CreateContainer(ctx context.Context, spec domain.ContainerSpec) (int64, error)
	FindContainer(ctx context.Context, kind domain.ContainerKind, name string, parentID *int64) (domain.ContainerRecord, error)

	ListTasks(ctx context.Context, kind domain.TaskKind) ([]domain.TaskRecord, error)
	CreateTask(ctx context.Context, task domain.TaskRecord) (int64, error)

	ListPolicies(ctx context.Context) ([]domain.Policy, error)
	FindPolicy(ctx context.Context, name string) (domain.Policy, error)

	ListContacts(ctx context.Context) ([]domain.Contact, error)
	FindContact(ctx context.Context, email string) (domain.Contact, error)
	CreateContact(ctx context.Context, contact domain.Contact) (int64, error)

	ListComputers(ctx context.Context) ([]domain.Computer, error)
	FindComputer(ctx context.Context, biosUUID string) (domain.Computer, error)

	SupportsTaskType(kind domain.TaskKind, taskType string) bool
}

// MaskKey keeps the last 8 characters of an API key
func MaskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return "..." + key[len(key)-8:]
}
