package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextAddressKey is the gin context key the middleware stores the
// verified caller address under.
const ContextAddressKey = "caller_address"

// Middleware verifies the Authorization bearer token and stores the caller
// address in the request context. Requests without a valid token are
// rejected with 401.
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a bearer token"})
			return
		}

		address, err := service.VerifyToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextAddressKey, address)
		c.Next()
	}
}

// CallerAddress returns the verified caller address set by Middleware, or ""
// when the request was not authenticated.
func CallerAddress(c *gin.Context) string {
	return c.GetString(ContextAddressKey)
}
