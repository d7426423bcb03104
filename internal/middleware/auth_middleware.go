package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"collaboraid-sync/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// BridgeAuth guards the local bridge with a shared bearer token. Browsers
// cannot set headers on a WebSocket upgrade, so ?token= is accepted too. An
// empty token disables the check.
func BridgeAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := extractBearer(c)
		if got == "" {
			got = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
