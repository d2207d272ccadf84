package export

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Handler handles HTTP requests for ledger exports
type Handler struct {
	exporter *Exporter
	logger   *zap.Logger
}

// NewHandler creates a new export handler
func NewHandler(exporter *Exporter, logger *zap.Logger) *Handler {
	return &Handler{
		exporter: exporter,
		logger:   logger,
	}
}

// RegisterRoutes registers export routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/audit/export", h.exportLedger)
	router.GET("/audit/export.csv", h.exportAuditCSV)
}

// exportLedger handles GET /api/v1/audit/export
func (h *Handler) exportLedger(c *gin.Context) {
	file, err := h.exporter.BuildWorkbook(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build ledger workbook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("marketplace-ledger-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := file.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream ledger workbook", zap.Error(err))
	}
}

// exportAuditCSV handles GET /api/v1/audit/export.csv
func (h *Handler) exportAuditCSV(c *gin.Context) {
	filter := marketplace.AuditFilter{
		Kind:    marketplace.AuditKind(c.Query("kind")),
		Account: c.Query("account"),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	filename := fmt.Sprintf("marketplace-audit-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := h.exporter.WriteAuditCSV(c.Request.Context(), c.Writer, filter); err != nil {
		h.logger.Error("Failed to stream audit CSV", zap.Error(err))
	}
}
