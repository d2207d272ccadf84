package certificates

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
	"carbon-scribe/marketplace/marketplace-backend/internal/storage/memory"
)

func seededEngine(t *testing.T) (*marketplace.Engine, *marketplace.AuditEntry) {
	t.Helper()
	ctx := context.Background()
	engine := marketplace.NewEngine(memory.NewStore(), marketplace.NewGuard("deployer-1"), nil, zap.NewNop())

	_, err := engine.Initialize(ctx, "deployer-1", 100, "admin-1")
	require.NoError(t, err)
	_, err = engine.RegisterProject(ctx, "admin-1", &marketplace.RegisterProjectRequest{
		Name:         "Forest Restoration X",
		TotalCredits: 1000,
		PricePerUnit: 50,
	})
	require.NoError(t, err)
	_, err = engine.PurchaseCredits(ctx, "buyer-1", 0, 10, 500)
	require.NoError(t, err)

	retirement, err := engine.RetireCredits(ctx, "buyer-1", 10, "offset 2024", "Acme Corp")
	require.NoError(t, err)
	return engine, retirement
}

func TestBuildCertificate(t *testing.T) {
	engine, retirement := seededEngine(t)
	generator := NewGenerator(engine, zap.NewNop())

	document, err := generator.Build(context.Background(), retirement.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(document, []byte("%PDF-")))
	assert.Greater(t, len(document), 1000)
}

func TestBuildCertificateUnknownEntry(t *testing.T) {
	engine, _ := seededEngine(t)
	generator := NewGenerator(engine, zap.NewNop())

	_, err := generator.Build(context.Background(), uuid.New())
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestBuildCertificateRejectsNonRetirement(t *testing.T) {
	engine, _ := seededEngine(t)
	generator := NewGenerator(engine, zap.NewNop())

	ctx := context.Background()
	purchases, err := engine.AuditTrail(ctx, marketplace.AuditFilter{Kind: marketplace.AuditPurchase})
	require.NoError(t, err)
	require.NotEmpty(t, purchases)

	_, err = generator.Build(ctx, purchases[0].ID)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestCertificateEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, retirement := seededEngine(t)
	handler := NewHandler(NewGenerator(engine, zap.NewNop()), zap.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/retirements/"+retirement.ID.String()+"/certificate", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/retirements/not-a-uuid/certificate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/retirements/"+uuid.NewString()+"/certificate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
