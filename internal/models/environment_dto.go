package models

import "time"

// ProvisionToolboxRequest represents the request body for provisioning a new Toolbox
type ProvisionToolboxRequest struct {
	Name        string `json:"name" binding:"required"`
	Region      string `json:"region,omitempty"`
	Size        string `json:"size,omitempty"`
	Description string `json:"description,omitempty"`
}

// ToolboxResponse represents the response structure for a single Toolbox
type ToolboxResponse struct {
	Id              string                 `json:"id"`
	UserId          string                 `json:"user_id,omitempty"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Region          string                 `json:"region"`
	Size            string                 `json:"size"`
	Image           string                 `json:"image"`
	PublicIPAddress string                 `json:"public_ip_address,omitempty"`
	Status          EnvironmentStatus      `json:"status"`
	AgentVersion    string                 `json:"agent_version,omitempty"`
	LastHeartbeatAt *time.Time             `json:"last_heartbeat_at,omitempty"`
	LastHealth      map[string]interface{} `json:"last_health,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ToolboxListResponse represents the response structure for listing Toolboxes
type ToolboxListResponse struct {
	Toolboxes []ToolboxResponse `json:"toolboxes"`
	Total     int               `json:"total"`
}

// ToResponse converts a domain Environment to a ToolboxResponse DTO.
// The provider instance id and secret reference are deliberately omitted.
func (e *Environment) ToResponse() ToolboxResponse {
	return ToolboxResponse{
		Id:              e.Id,
		UserId:          e.UserId,
		Name:            e.Name,
		Description:     e.Description,
		Region:          e.Region,
		Size:            e.Size,
		Image:           e.Image,
		PublicIPAddress: e.PublicIPAddress,
		Status:          e.Status,
		AgentVersion:    e.AgentVersion,
		LastHeartbeatAt: e.LastHeartbeatAt,
		LastHealth:      e.LastHealth,
		LastError:       e.LastError,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// DeployToolRequest represents the request body for deploying a tool onto a Toolbox
type DeployToolRequest struct {
	CatalogEntryId     string `json:"catalog_entry_id" binding:"required"`
	InstanceName       string `json:"instance_name" binding:"required"`
	ConfigOverrideJson string `json:"config_override_json,omitempty"`
}

// InstanceResponse represents the response structure for a single tool instance
type InstanceResponse struct {
	Id                   string         `json:"id"`
	EnvironmentId        string         `json:"toolbox_id"`
	CatalogEntryId       string         `json:"catalog_entry_id"`
	NameOnToolbox        string         `json:"name_on_toolbox"`
	Status               InstanceStatus `json:"status"`
	LastError            string         `json:"last_error,omitempty"`
	LastAgentHeartbeatAt *time.Time     `json:"last_agent_heartbeat_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// InstanceListResponse represents the response structure for listing tool instances
type InstanceListResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Total     int                `json:"total"`
}

// ToResponse converts a domain Instance to an InstanceResponse DTO
func (i *Instance) ToResponse() InstanceResponse {
	return InstanceResponse{
		Id:                   i.Id,
		EnvironmentId:        i.EnvironmentId,
		CatalogEntryId:       i.CatalogEntryId,
		NameOnToolbox:        i.NameOnToolbox,
		Status:               i.Status,
		LastError:            i.LastError,
		LastAgentHeartbeatAt: i.LastAgentHeartbeatAt,
		CreatedAt:            i.CreatedAt,
		UpdatedAt:            i.UpdatedAt,
	}
}

// CreateCatalogEntryRequest represents the request body for registering a tool
// in the catalog
type CreateCatalogEntryRequest struct {
	Name              string `json:"name" binding:"required"`
	Description       string `json:"description,omitempty"`
	ImageRef          string `json:"image_ref" binding:"required"`
	DefaultConfigJson string `json:"default_config_json,omitempty"`
}

// CatalogEntryResponse represents the response structure for a catalog entry
type CatalogEntryResponse struct {
	Id                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	ImageRef          string    `json:"image_ref"`
	DefaultConfigJson string    `json:"default_config_json,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ToResponse converts a domain CatalogEntry to a CatalogEntryResponse DTO
func (c *CatalogEntry) ToResponse() CatalogEntryResponse {
	return CatalogEntryResponse{
		Id:                c.Id,
		Name:              c.Name,
		Description:       c.Description,
		ImageRef:          c.ImageRef,
		DefaultConfigJson: c.DefaultConfigJson,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}
