package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(ttl time.Duration) *Service {
	return NewService("test-secret", "marketplace-test", ttl, zap.NewNop())
}

func TestTokenRoundtrip(t *testing.T) {
	service := newTestService(time.Hour)

	token, expiresAt, err := service.IssueToken("buyer-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	address, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", address)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := newTestService(time.Hour).IssueToken("buyer-1")
	require.NoError(t, err)

	other := NewService("different-secret", "marketplace-test", time.Hour, zap.NewNop())
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	service := newTestService(-time.Minute)

	token, _, err := service.IssueToken("buyer-1")
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsEmptySubject(t *testing.T) {
	service := newTestService(time.Hour)

	token, _, err := service.IssueToken("")
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	service := newTestService(time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "buyer-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.VerifyToken(unsigned)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newTestService(time.Hour)

	router := gin.New()
	router.Use(Middleware(service))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"address": CallerAddress(c)})
	})

	token, _, err := service.IssueToken("buyer-1")
	require.NoError(t, err)

	// valid bearer token
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "buyer-1", payload["address"])

	// missing header
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// not a bearer token
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// garbage token
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newTestService(time.Hour)
	handler := NewHandler(service, zap.NewNop())

	router := gin.New()
	RegisterRoutes(router, handler)

	body, _ := json.Marshal(gin.H{"address": "buyer-1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	token, ok := payload["token"].(string)
	require.True(t, ok)

	address, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", address)

	// address is required
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
