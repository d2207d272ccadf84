package marketplace

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

// Handler handles HTTP requests for marketplace operations
type Handler struct {
	engine   *Engine
	treasury string
	logger   *zap.Logger
}

// NewHandler creates a new marketplace handler. treasury is the address
// payments must name as receiver.
func NewHandler(engine *Engine, treasury string, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		treasury: treasury,
		logger:   logger,
	}
}

// RegisterRoutes registers marketplace routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	marketplace := router.Group("/marketplace")
	{
		marketplace.POST("/initialize", h.initialize)
		marketplace.GET("/stats", h.getStats)
		marketplace.GET("/config", h.getConfig)
	}

	projects := router.Group("/projects")
	{
		projects.POST("", h.registerProject)
		projects.GET("", h.listProjects)
		projects.GET("/:id", h.getProject)
	}

	credits := router.Group("/credits")
	{
		credits.POST("/purchase", h.purchaseCredits)
		credits.POST("/retire", h.retireCredits)
		credits.POST("/transfer", h.transferCredits)
	}

	accounts := router.Group("/accounts")
	{
		accounts.GET("/:address", h.getAccount)
		accounts.GET("/:address/credits", h.getUserCredits)
	}

	audit := router.Group("/audit")
	{
		audit.GET("", h.auditTrail)
		audit.GET("/verify", h.verifyAuditChain)
	}
}

// =====================================================
// Marketplace lifecycle
// =====================================================

// initialize handles POST /api/v1/marketplace/initialize
func (h *Handler) initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	config, err := h.engine.Initialize(c.Request.Context(), auth.CallerAddress(c), req.FeeBasisPoints, req.Admin)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, config)
}

// getStats handles GET /api/v1/marketplace/stats
func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.engine.GetMarketplaceStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getConfig handles GET /api/v1/marketplace/config
func (h *Handler) getConfig(c *gin.Context) {
	config, err := h.engine.GetConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, config)
}

// =====================================================
// Projects
// =====================================================

// registerProject handles POST /api/v1/projects
func (h *Handler) registerProject(c *gin.Context) {
	var req RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.engine.RegisterProject(c.Request.Context(), auth.CallerAddress(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// listProjects handles GET /api/v1/projects
func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.engine.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projects":    projects,
		"total_count": len(projects),
	})
}

// getProject handles GET /api/v1/projects/:id
func (h *Handler) getProject(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return
	}

	project, err := h.engine.GetProject(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// =====================================================
// Credits
// =====================================================

// purchaseCredits handles POST /api/v1/credits/purchase
func (h *Handler) purchaseCredits(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the payment leg is settled externally; the receiver must be the
	// marketplace treasury
	if req.Payment.Receiver != h.treasury {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment receiver does not match the marketplace treasury"})
		return
	}

	entry, err := h.engine.PurchaseCredits(c.Request.Context(), auth.CallerAddress(c), req.ProjectID, req.Quantity, req.Payment.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// retireCredits handles POST /api/v1/credits/retire
func (h *Handler) retireCredits(c *gin.Context) {
	var req RetireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.engine.RetireCredits(c.Request.Context(), auth.CallerAddress(c), req.Quantity, req.Reason, req.Beneficiary)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// transferCredits handles POST /api/v1/credits/transfer
func (h *Handler) transferCredits(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.engine.TransferCredits(c.Request.Context(), auth.CallerAddress(c), req.Recipient, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// =====================================================
// Accounts
// =====================================================

// getAccount handles GET /api/v1/accounts/:address
func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.engine.GetAccount(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// getUserCredits handles GET /api/v1/accounts/:address/credits
func (h *Handler) getUserCredits(c *gin.Context) {
	address := c.Param("address")

	credits, err := h.engine.GetUserCredits(c.Request.Context(), address)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":       address,
		"credits_owned": credits,
	})
}

// =====================================================
// Audit
// =====================================================

// auditTrail handles GET /api/v1/audit
func (h *Handler) auditTrail(c *gin.Context) {
	filter := AuditFilter{
		Kind:    AuditKind(c.Query("kind")),
		Account: c.Query("account"),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	entries, err := h.engine.AuditTrail(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":     entries,
		"total_count": len(entries),
	})
}

// verifyAuditChain handles GET /api/v1/audit/verify
func (h *Handler) verifyAuditChain(c *gin.Context) {
	entries, err := h.engine.VerifyAuditChain(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"entries": entries,
	})
}

// =====================================================
// Helper Methods
// =====================================================

// respondError maps engine errors to HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := h.statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Marketplace operation failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrExhausted):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
