package models

// AgentStatusReport is the envelope returned by the management agent's
// GET /status endpoint. Only version and tool_instances are relied upon;
// everything else is carried as opaque structured data.
type AgentStatusReport struct {
	Version       string                 `json:"version"`
	Environment   map[string]interface{} `json:"environment,omitempty"`
	SystemMetrics map[string]interface{} `json:"system_metrics,omitempty"`
	ToolInstances []AgentToolReport      `json:"tool_instances"`
}

// AgentToolReport is the agent's self-reported state of one tool instance.
type AgentToolReport struct {
	AccountToolInstanceId string                 `json:"account_tool_instance_id"`
	Status                string                 `json:"status"`
	ContainerId           string                 `json:"container_id,omitempty"`
	InstanceNameOnToolbox string                 `json:"instance_name_on_toolbox"`
	Metrics               map[string]interface{} `json:"metrics,omitempty"`
}

// HealthSnapshot extracts the opaque health blob to persist on the
// environment record, preferring system metrics when present.
func (r *AgentStatusReport) HealthSnapshot() map[string]interface{} {
	if len(r.SystemMetrics) > 0 {
		return r.SystemMetrics
	}
	return r.Environment
}

// AgentDeployRequest is the payload for the agent's POST /tools endpoint.
type AgentDeployRequest struct {
	DockerImageUrl         string `json:"dockerImageUrl"`
	InstanceNameOnToolbox  string `json:"instanceNameOnToolbox"`
	AccountToolInstanceId  string `json:"accountToolInstanceId"`
	BaseConfigOverrideJson string `json:"baseConfigOverrideJson,omitempty"`
}
