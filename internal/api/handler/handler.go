package handler

import (
	"errors"
	"net/http"

	"flowpilot/internal/collab"
	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"
	"flowpilot/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler exposes the engine over HTTP. It is a thin translation layer: all
// state transitions live in the services.
type Handler struct {
	workflows service.WorkflowService
	instances service.InstanceService
	hub       *collab.Hub
	files     ports.FileStore
}

func New(workflows service.WorkflowService, instances service.InstanceService, hub *collab.Hub, files ports.FileStore) *Handler {
	return &Handler{
		workflows: workflows,
		instances: instances,
		hub:       hub,
		files:     files,
	}
}

// Register wires the API routes onto the router group.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.POST("/workflows", h.CreateWorkflow)
	api.GET("/workflows", h.ListWorkflows)
	api.GET("/workflows/:id", h.GetWorkflow)
	api.POST("/workflows/:id/versions", h.CreateWorkflowVersion)

	api.POST("/instances", h.StartInstance)
	api.GET("/instances", h.ListInstances)
	api.GET("/instances/:id", h.GetInstance)
	api.PUT("/instances/:id", h.UpdateInstance)
	api.POST("/instances/:id/steps", h.ExecuteStep)
	api.POST("/instances/:id/fail", h.FailInstance)
	api.GET("/instances/:id/metrics", h.GetMetrics)
	api.GET("/instances/:id/activity", h.GetActivity)

	api.GET("/client-validations/:token", h.GetClientValidation)
	api.POST("/client-validations/:token", h.ResolveClientValidation)

	api.POST("/uploads", h.Upload)
}

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsConflictError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsExecutorError(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
