package connector

import (
	"fmt"
	"net/http"

	"github.com/lherron/aiomigrate/internal/domain"
)

// Dialect names
const (
	DialectLegacy = "ds"
	DialectCloud  = "swp"
)

// Dialect captures what differs between the two endpoint generations
type Dialect interface {
	Name() string
	// Authorize sets the authentication and content negotiation headers
	Authorize(h http.Header, apiKey string)
	SupportsTaskType(kind domain.TaskKind, taskType string) bool
}

// DialectFor returns the dialect for a configured endpoint type
func DialectFor(name string) (Dialect, error) {
	switch name {
	case DialectLegacy:
		return legacyDialect{}, nil
	case DialectCloud:
		return cloudDialect{}, nil
	default:
		return nil, fmt.Errorf("invalid endpoint type %q: must be one of: %s, %s", name, DialectLegacy, DialectCloud)
	}
}

type legacyDialect struct{}

func (legacyDialect) Name() string { return DialectLegacy }

func (legacyDialect) Authorize(h http.Header, apiKey string) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("api-secret-key", apiKey)
	h.Set("api-version", "v1")
}

func (legacyDialect) SupportsTaskType(domain.TaskKind, string) bool { return true }

type cloudDialect struct{}

func (cloudDialect) Name() string { return DialectCloud }

func (cloudDialect) Authorize(h http.Header, apiKey string) {
	h.Set("Content-Type", "application/json")
	h.Set("api-secret-key", apiKey)
	h.Set("api-version", "v1")
}

// cloudUnsupportedTypes are scheduled task types the cloud manager refuses
var cloudUnsupportedTypes = map[string]bool{
	"check-for-software-updates": true,
}

func (cloudDialect) SupportsTaskType(kind domain.TaskKind, taskType string) bool {
	if kind != domain.TaskKindScheduled {
		return true
	}
	return !cloudUnsupportedTypes[taskType]
}
