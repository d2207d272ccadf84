package certificates

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Handler handles HTTP requests for retirement certificates
type Handler struct {
	generator *Generator
	logger    *zap.Logger
}

// NewHandler creates a new certificates handler
func NewHandler(generator *Generator, logger *zap.Logger) *Handler {
	return &Handler{
		generator: generator,
		logger:    logger,
	}
}

// RegisterRoutes registers certificate routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/retirements/:id/certificate", h.getCertificate)
}

// getCertificate handles GET /api/v1/retirements/:id/certificate
func (h *Handler) getCertificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid retirement ID"})
		return
	}

	document, err := h.generator.Build(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "retirement not found"})
			return
		}
		h.logger.Error("Failed to generate certificate", zap.Error(err), zap.String("entry_id", id.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("retirement-%s.pdf", id)))
	c.Data(http.StatusOK, "application/pdf", document)
}
