package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/repository"
	"github.com/maverick-software/toolboxd/internal/services"
)

// CatalogHandler handles tool catalog requests
type CatalogHandler struct {
	repo     repository.CatalogRepository
	registry services.ImageResolver
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(repo repository.CatalogRepository, registry services.ImageResolver) *CatalogHandler {
	return &CatalogHandler{
		repo:     repo,
		registry: registry,
	}
}

// Create handles registering a new tool in the catalog. Admin only.
func (h *CatalogHandler) Create(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	if !caller.IsAdmin() {
		respondServiceError(c, services.ErrNotAuthorized)
		return
	}

	var req models.CreateCatalogEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	// Reject references that would only fail later, at deploy time.
	if _, err := h.registry.ResolveImage(c.Request.Context(), req.ImageRef); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_image",
			"message": err.Error(),
		})
		return
	}

	entryId, err := services.NewCatalogEntryId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Failed to create catalog entry",
		})
		return
	}

	now := time.Now()
	entry := &models.CatalogEntry{
		Id:                entryId,
		Name:              req.Name,
		Description:       req.Description,
		ImageRef:          req.ImageRef,
		DefaultConfigJson: req.DefaultConfigJson,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.repo.Create(c.Request.Context(), entry); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry.ToResponse())
}

// List handles listing all catalog entries
func (h *CatalogHandler) List(c *gin.Context) {
	if _, ok := callerOrAbort(c); !ok {
		return
	}

	entries, err := h.repo.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Failed to retrieve catalog",
		})
		return
	}

	responses := make([]models.CatalogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, entry.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": responses,
		"total":   len(responses),
	})
}

// Get handles retrieving a single catalog entry
func (h *CatalogHandler) Get(c *gin.Context) {
	if _, ok := callerOrAbort(c); !ok {
		return
	}

	entry, err := h.repo.Get(c.Request.Context(), c.Param("entry_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry.ToResponse())
}

// Delete handles removing a catalog entry. Admin only.
func (h *CatalogHandler) Delete(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	if !caller.IsAdmin() {
		respondServiceError(c, services.ErrNotAuthorized)
		return
	}

	if err := h.repo.Delete(c.Request.Context(), c.Param("entry_id")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Catalog entry deleted",
	})
}
