package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/services"
)

// InstanceHandler handles tool instance requests
type InstanceHandler struct {
	dispatcher *services.DispatcherService
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(dispatcher *services.DispatcherService) *InstanceHandler {
	return &InstanceHandler{
		dispatcher: dispatcher,
	}
}

// Deploy handles deploying a catalog tool onto a Toolbox
func (h *InstanceHandler) Deploy(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req models.DeployToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	instance, err := h.dispatcher.Deploy(c.Request.Context(), caller, c.Param("toolbox_id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, instance.ToResponse())
}

// List handles listing the tool instances on a Toolbox
func (h *InstanceHandler) List(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	instances, err := h.dispatcher.ListByEnvironment(c.Request.Context(), caller, c.Param("toolbox_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	responses := make([]models.InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		responses = append(responses, instance.ToResponse())
	}

	c.JSON(http.StatusOK, models.InstanceListResponse{
		Instances: responses,
		Total:     len(responses),
	})
}

// Start handles starting a stopped tool instance
func (h *InstanceHandler) Start(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	instance, err := h.dispatcher.Start(c.Request.Context(), caller, c.Param("instance_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance.ToResponse())
}

// Stop handles stopping a running tool instance
func (h *InstanceHandler) Stop(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	instance, err := h.dispatcher.Stop(c.Request.Context(), caller, c.Param("instance_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance.ToResponse())
}

// Remove handles removing a tool instance from its Toolbox
func (h *InstanceHandler) Remove(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	if err := h.dispatcher.Remove(c.Request.Context(), caller, c.Param("instance_id")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Tool instance removed",
	})
}
