package handler

import (
	"net/http"

	"flowpilot/internal/api/dto"

	"github.com/gin-gonic/gin"
)

// GetClientValidation is the anonymous read path for the secure link the
// client received. No authentication beyond possession of the token.
func (h *Handler) GetClientValidation(c *gin.Context) {
	validation, err := h.instances.GetValidationByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, validation)
}

func (h *Handler) ResolveClientValidation(c *gin.Context) {
	var req dto.ResolveValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	waitMs, err := h.instances.ResolveClientValidation(c.Request.Context(), c.Param("token"), req.Files)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ResolveValidationResponse{
		Message:    "validation completed",
		WaitTimeMs: waitMs,
	})
}

// Upload stores a multipart file and returns the reference the client then
// submits with ResolveClientValidation.
func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file form field is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	ref, err := h.files.Store(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.UploadResponse{FileRef: ref})
}
