package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is returned when the caller neither owns the resource
	// nor carries the privileged role.
	ErrNotAuthorized = errors.New("caller is not authorized for this resource")

	// ErrAgentUnreachable is returned when the management agent cannot be
	// reached over the network within the call timeout.
	ErrAgentUnreachable = errors.New("toolbox agent unreachable")
)

// ConfigurationError indicates required configuration is missing. It is fatal
// for the operation and never retried.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Missing)
}

// StatePreconditionError is returned when an operation is attempted against
// an environment or instance that is not in a valid state for it.
type StatePreconditionError struct {
	Resource string // "toolbox" or "tool instance"
	Id       string
	Current  string
	Required string
}

func (e *StatePreconditionError) Error() string {
	return fmt.Sprintf("%s %s is in status %q, operation requires %q", e.Resource, e.Id, e.Current, e.Required)
}

// AgentProtocolError is returned when the management agent responds with a
// non-2xx status or an undecodable body.
type AgentProtocolError struct {
	StatusCode int
	Detail     string
}

func (e *AgentProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("toolbox agent returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("toolbox agent protocol error: %s", e.Detail)
}

// truncateError caps a persisted error message so record columns never grow
// unbounded.
const maxPersistedErrorLen = 1024

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxPersistedErrorLen {
		return msg[:maxPersistedErrorLen]
	}
	return msg
}
