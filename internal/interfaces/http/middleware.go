package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/buffrsign/esign-orchestrator/internal/auth"
)

const claimsKey = "auth_claims"

// requireAccessToken rejects requests without a valid bearer access token
// and stores the claims on the context.
func requireAccessToken(tokens *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			abort(c, http.StatusServiceUnavailable, "token service not configured")
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := tokens.Validate(c.Request.Context(), token, auth.TokenAccess)
		if err != nil {
			status, msg := statusForError(err)
			abort(c, status, msg)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireServiceKey guards token issuance when a service key is configured
func requireServiceKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Service-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abort(c, http.StatusUnauthorized, "invalid service key")
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}

// corsMiddleware adds CORS headers for browser clients
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Service-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
