package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maverick-software/toolboxd/internal/middleware"
	"github.com/maverick-software/toolboxd/internal/models"
	"github.com/maverick-software/toolboxd/internal/repository"
	"github.com/maverick-software/toolboxd/internal/services"
)

// callerOrAbort extracts the authenticated caller, aborting with 401 when the
// auth middleware did not run.
func callerOrAbort(c *gin.Context) (models.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Caller identity not found in context",
		})
		return models.Caller{}, false
	}
	return caller, true
}

// respondServiceError maps service-layer errors onto HTTP responses
func respondServiceError(c *gin.Context, err error) {
	var precondition *services.StatePreconditionError
	var agentErr *services.AgentProtocolError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"message": "Resource not found",
		})
	case errors.Is(err, services.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
		})
	case errors.As(err, &precondition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": precondition.Error(),
		})
	case errors.Is(err, services.ErrAgentUnreachable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "agent_unreachable",
			"message": "Toolbox agent did not respond",
		})
	case errors.As(err, &agentErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "agent_error",
			"message": agentErr.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": err.Error(),
		})
	}
}
