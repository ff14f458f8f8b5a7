package models

import "time"

// EnvironmentStatus is the lifecycle status of a Toolbox environment.
// Transitions are driven exclusively by the lifecycle service; a successfully
// deprovisioned environment has its record deleted rather than a terminal status.
type EnvironmentStatus string

const (
	EnvStatusPendingProvision    EnvironmentStatus = "pending_provision"
	EnvStatusProvisioning        EnvironmentStatus = "provisioning"
	EnvStatusAwaitingHeartbeat   EnvironmentStatus = "awaiting_heartbeat"
	EnvStatusActive              EnvironmentStatus = "active"
	EnvStatusUnresponsive        EnvironmentStatus = "unresponsive"
	EnvStatusErrorProvisioning   EnvironmentStatus = "error_provisioning"
	EnvStatusDeprovisioning      EnvironmentStatus = "deprovisioning"
	EnvStatusErrorDeprovisioning EnvironmentStatus = "error_deprovisioning"
)

// IsDeprovisioningAdjacent reports whether the environment is in the
// deprovisioning path. Status refresh must not flip such an environment back
// to active, and commands against it are rejected.
func (s EnvironmentStatus) IsDeprovisioningAdjacent() bool {
	return s == EnvStatusDeprovisioning || s == EnvStatusErrorDeprovisioning
}

// ProviderInstanceStatus is the canonical form of the compute provider's
// droplet status vocabulary.
type ProviderInstanceStatus string

const (
	ProviderStatusNew      ProviderInstanceStatus = "new"
	ProviderStatusActive   ProviderInstanceStatus = "active"
	ProviderStatusOff      ProviderInstanceStatus = "off"
	ProviderStatusArchived ProviderInstanceStatus = "archive"
	ProviderStatusErrored  ProviderInstanceStatus = "errored"
	ProviderStatusUnknown  ProviderInstanceStatus = "unknown"
)

// ParseProviderInstanceStatus maps the provider's raw status string to the
// canonical enum. Unrecognized values map to ProviderStatusUnknown, never to
// a healthy state.
func ParseProviderInstanceStatus(raw string) ProviderInstanceStatus {
	switch raw {
	case "new":
		return ProviderStatusNew
	case "active":
		return ProviderStatusActive
	case "off":
		return ProviderStatusOff
	case "archive":
		return ProviderStatusArchived
	case "errored":
		return ProviderStatusErrored
	default:
		return ProviderStatusUnknown
	}
}

// IsTerminalFailure reports whether polling should abort because the provider
// will never bring this instance to active.
func (s ProviderInstanceStatus) IsTerminalFailure() bool {
	return s == ProviderStatusArchived || s == ProviderStatusErrored
}

// Environment represents the domain model for a Toolbox: one remote compute
// instance dedicated to a user account, running the management agent.
// This is a database-agnostic business entity.
type Environment struct {
	Id          string
	UserId      string // Auth0 user ID of the owner
	Name        string
	Description string

	// Provider linkage. ProviderInstanceId is empty until instance creation
	// succeeds; PublicIPAddress is empty until the instance reports active.
	ProviderInstanceId string
	Region             string
	Size               string
	Image              string
	PublicIPAddress    string

	// AgentTokenRef is the secret-store reference of the agent bearer token.
	// The raw token is never held on the record.
	AgentTokenRef string

	Status EnvironmentStatus

	// Health snapshot, updated by status refresh.
	AgentVersion    string
	LastHeartbeatAt *time.Time
	LastHealth      map[string]interface{}
	LastError       string

	CreatedAt time.Time
	UpdatedAt time.Time
}
