package models

import "time"

// InstanceStatus is the lifecycle status of a tool instance deployed on a
// Toolbox. Transitions are driven by the command dispatcher immediately after
// issuing agent calls, and asynchronously by reconciliation from the agent's
// self-reported state.
type InstanceStatus string

const (
	InstanceStatusPendingDeploy     InstanceStatus = "pending_deploy"
	InstanceStatusDeploying         InstanceStatus = "deploying"
	InstanceStatusRunning           InstanceStatus = "running"
	InstanceStatusStoppingOnToolbox InstanceStatus = "stopping_on_toolbox"
	InstanceStatusStopped           InstanceStatus = "stopped"
	InstanceStatusStartingOnToolbox InstanceStatus = "starting_on_toolbox"
	InstanceStatusPendingDelete     InstanceStatus = "pending_delete"
	InstanceStatusDeleting          InstanceStatus = "deleting"
	InstanceStatusError             InstanceStatus = "error"
	InstanceStatusErrorDeploying    InstanceStatus = "error_deploying"
	InstanceStatusErrorStarting     InstanceStatus = "error_starting"
	InstanceStatusErrorStopping     InstanceStatus = "error_stopping"
	InstanceStatusErrorDeleting     InstanceStatus = "error_deleting"
)

// MapAgentToolStatus maps the agent's free-form tool status string to the
// canonical instance status. STOPPING is intentionally coarse-mapped to
// deploying (transitional). Anything unrecognized maps to error: an unknown
// agent state is never treated as healthy.
func MapAgentToolStatus(reported string) InstanceStatus {
	switch reported {
	case "PENDING", "STARTING":
		return InstanceStatusDeploying
	case "RUNNING":
		return InstanceStatusRunning
	case "STOPPING":
		return InstanceStatusDeploying
	case "STOPPED":
		return InstanceStatusStopped
	case "ERROR":
		return InstanceStatusError
	default:
		return InstanceStatusError
	}
}

// Instance represents the domain model for a containerized tool deployed onto
// a Toolbox by the management agent.
// This is a database-agnostic business entity.
type Instance struct {
	Id             string
	EnvironmentId  string
	CatalogEntryId string

	// NameOnToolbox is the container name the agent runs the tool under,
	// unique within the owning environment.
	NameOnToolbox string

	// BaseConfigOverrideJson is an opaque JSON document forwarded to the
	// agent at deploy time.
	BaseConfigOverrideJson string

	Status    InstanceStatus
	LastError string

	// LastAgentHeartbeatAt is the timestamp of the most recent agent report
	// that mentioned this instance.
	LastAgentHeartbeatAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
