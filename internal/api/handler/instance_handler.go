package handler

import (
	"net/http"
	"strconv"

	"flowpilot/internal/api/dto"
	"flowpilot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) StartInstance(c *gin.Context) {
	var req dto.StartInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.instances.Start(c.Request.Context(), service.StartInstanceRequest{
		WorkflowID:  req.WorkflowID,
		StartedBy:   req.StartedBy,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, instance)
}

func (h *Handler) ListInstances(c *gin.Context) {
	instances, err := h.instances.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (h *Handler) GetInstance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	instance, executions, err := h.instances.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InstanceResponse{Instance: instance, Executions: executions})
}

func (h *Handler) ExecuteStep(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	var req dto.ExecuteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.instances.ExecuteCurrentStep(c.Request.Context(), id, service.ExecuteStepRequest{
		Input:           req.Input,
		Output:          req.Output,
		ExecutionTimeMs: req.ExecutionTimeMs,
		ClientEmail:     req.ClientEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StepResultResponse{
		Kind:              string(result.Kind),
		Execution:         result.Execution,
		Validation:        result.Validation,
		SecureLink:        result.SecureLink,
		AIResult:          result.AIResult,
		InstanceCompleted: result.InstanceCompleted,
	})
}

func (h *Handler) UpdateInstance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	var req dto.UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.instances.SetQualityScore(c.Request.Context(), id, *req.OutputQualityScore); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) FailInstance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	var req dto.FailInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.instances.Fail(c.Request.Context(), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	// Optional benchmark comparison via query parameters.
	var industry *service.IndustryAverage
	if timeStr := c.Query("industry_time_ms"); timeStr != "" {
		timeMs, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid industry_time_ms"})
			return
		}
		cost, err := strconv.ParseFloat(c.DefaultQuery("industry_cost", "0"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid industry_cost"})
			return
		}
		industry = &service.IndustryAverage{TotalExecutionTimeMs: timeMs, TotalCost: cost}
	}

	summary, err := h.instances.Metrics(c.Request.Context(), id, industry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetActivity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return
	}

	if h.hub == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, h.hub.Activity(id))
}
