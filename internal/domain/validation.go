package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidateContainerKind validates a container kind
func ValidateContainerKind(kind string) error {
	switch ContainerKind(kind) {
	case ContainerKindGroup, ContainerKindFolder:
		return nil
	default:
		return fmt.Errorf("invalid container kind: must be one of: group, folder")
	}
}

// ValidateTaskKind validates a task kind
func ValidateTaskKind(kind string) error {
	switch TaskKind(kind) {
	case TaskKindScheduled, TaskKindEventBased:
		return nil
	default:
		return fmt.Errorf("invalid task kind: must be one of: scheduled, event-based")
	}
}

// ValidateName validates a container or task name as received from an endpoint
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name cannot contain NUL")
	}
	return nil
}

// ValidateEmail validates a contact email address
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}

// EffectiveName applies an operator-supplied prefix to a task name
func EffectiveName(prefix, name string) string {
	return prefix + name
}
