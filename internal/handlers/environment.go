package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/queue"
	"github.com/maverick-software/toolboxd/internal/repository"
	"github.com/maverick-software/toolboxd/internal/services"
)

// EnvironmentHandler handles Toolbox environment requests
type EnvironmentHandler struct {
	lifecycle *services.LifecycleService
	envRepo   repository.EnvironmentRepository
	jobs      *queue.JobQueue
}

// NewEnvironmentHandler creates a new environment handler
func NewEnvironmentHandler(lifecycle *services.LifecycleService, envRepo repository.EnvironmentRepository, jobs *queue.JobQueue) *EnvironmentHandler {
	return &EnvironmentHandler{
		lifecycle: lifecycle,
		envRepo:   envRepo,
		jobs:      jobs,
	}
}

// Provision handles creating a new Toolbox. The record is created
// synchronously; the slow provider work runs on the background worker pool.
func (h *EnvironmentHandler) Provision(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req models.ProvisionToolboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	env, err := h.lifecycle.CreateEnvironment(c.Request.Context(), caller.UserId, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if err := h.jobs.Enqueue(&queue.ProvisionJob{
		EnvironmentID: env.Id,
		UserID:        caller.UserId,
	}); err != nil {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": env.Id,
			"error":      err.Error(),
		}).Error("Failed to enqueue provision job")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": "Provisioning queue is unavailable",
		})
		return
	}

	c.JSON(http.StatusAccepted, env.ToResponse())
}

// List handles listing the caller's Toolboxes. Admins see all environments.
func (h *EnvironmentHandler) List(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var (
		envs []*models.Environment
		err  error
	)
	if caller.IsAdmin() {
		envs, err = h.envRepo.GetAll(c.Request.Context())
	} else {
		envs, err = h.envRepo.GetByUserId(c.Request.Context(), caller.UserId)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Failed to retrieve toolboxes",
		})
		return
	}

	responses := make([]models.ToolboxResponse, 0, len(envs))
	for _, env := range envs {
		responses = append(responses, env.ToResponse())
	}

	c.JSON(http.StatusOK, models.ToolboxListResponse{
		Toolboxes: responses,
		Total:     len(responses),
	})
}

// Get handles retrieving a single Toolbox by ID
func (h *EnvironmentHandler) Get(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	env, err := h.envRepo.Get(c.Request.Context(), c.Param("toolbox_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if !caller.MayAccess(env.UserId) {
		respondServiceError(c, services.ErrNotAuthorized)
		return
	}

	c.JSON(http.StatusOK, env.ToResponse())
}

// Refresh handles an on-demand status refresh against the Toolbox agent
func (h *EnvironmentHandler) Refresh(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	env, err := h.lifecycle.RefreshStatus(c.Request.Context(), c.Param("toolbox_id"), ownerScope(caller))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, env.ToResponse())
}

// Deprovision handles tearing down a Toolbox
func (h *EnvironmentHandler) Deprovision(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Deprovision(c.Request.Context(), c.Param("toolbox_id"), ownerScope(caller)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Toolbox deprovisioned",
	})
}

// Orphans handles listing untracked provider instances. Admin only.
func (h *EnvironmentHandler) Orphans(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	if !caller.IsAdmin() {
		respondServiceError(c, services.ErrNotAuthorized)
		return
	}

	orphans, err := h.lifecycle.ListOrphanInstances(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orphans": orphans,
		"total":   len(orphans),
	})
}

// ownerScope returns the owner filter the lifecycle service should enforce:
// admins act on any environment, everyone else only on their own.
func ownerScope(caller models.Caller) string {
	if caller.IsAdmin() {
		return ""
	}
	return caller.UserId
}
