package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"

	// PrincipalKey is the gin context key holding the authenticated role.
	PrincipalKey = "principal"

	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// RequireKey validates the X-API-Key header against key and records role as the
// request principal. The WebSocket endpoint may pass the key as ?api_key= since
// browsers cannot set headers on upgrade requests.
// If key is empty, authentication is disabled for the group.
func RequireKey(role, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Set(PrincipalKey, role)
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" && c.IsWebsocket() {
			provided = c.Query("api_key")
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Set(PrincipalKey, role)
		c.Next()
	}
}
