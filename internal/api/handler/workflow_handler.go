package handler

import (
	"net/http"

	"flowpilot/internal/api/dto"
	"flowpilot/internal/domain"
	"flowpilot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, steps, err := h.workflows.Create(c.Request.Context(), service.CreateWorkflowRequest{
		AuthorID:    req.AuthorID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		IsPublic:    req.IsPublic,
		Steps:       toStepInputs(req.Steps),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.WorkflowResponse{Workflow: def, Steps: steps})
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	authorID, err := uuid.Parse(c.Query("author_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author_id query parameter is required"})
		return
	}

	defs, err := h.workflows.List(c.Request.Context(), authorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	def, steps, err := h.workflows.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.WorkflowResponse{Workflow: def, Steps: steps})
}

func (h *Handler) CreateWorkflowVersion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, steps, err := h.workflows.CreateVersion(c.Request.Context(), id, service.CreateVersionRequest{
		AuthorID:     req.AuthorID,
		Version:      req.Version,
		VersionNotes: req.VersionNotes,
		Steps:        toStepInputs(req.Steps),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.WorkflowResponse{Workflow: def, Steps: steps})
}

func toStepInputs(in []dto.StepInputDTO) []service.StepInput {
	steps := make([]service.StepInput, 0, len(in))
	for _, s := range in {
		steps = append(steps, service.StepInput{
			Kind:               domain.StepKind(s.Kind),
			Label:              s.Label,
			Instructions:       s.Instructions,
			SystemPrompt:       s.SystemPrompt,
			UserPromptTemplate: s.UserPromptTemplate,
		})
	}
	return steps
}
