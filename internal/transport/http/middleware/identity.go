package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragworkbench/internal/ingest"
	"ragworkbench/internal/pkg/jwtutil"
	"ragworkbench/internal/transport/http/response"
)

const ContextUserIDKey = "user_id"

// Identity resolves the workbench user. With a secret configured a bearer
// token is mandatory; without one the X-User-ID header is trusted and
// defaultUser is used when it is absent.
func Identity(secret, defaultUser string) gin.HandlerFunc {
	if strings.TrimSpace(secret) == "" {
		return func(c *gin.Context) {
			userID := strings.TrimSpace(c.GetHeader(ingest.HeaderUserID))
			if userID == "" {
				userID = defaultUser
			}
			c.Set(ContextUserIDKey, userID)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(strings.TrimPrefix(authHeader, prefix)))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

func UserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserIDKey)
	return userID, userID != ""
}
