package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
)

const (
	userIDContextKey   = "userID"
	usernameContextKey = "username"
)

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func UsernameFromContext(c *gin.Context) string {
	return c.GetString(usernameContextKey)
}

// TokenAuth reads an "Authorization: Token <jwt>" header. Requests without
// the header pass through anonymously; a header that does not verify is
// rejected.
func TokenAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Token") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token header."})
			return
		}

		claims, err := auth.VerifyToken(strings.TrimSpace(parts[1]), cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Set(usernameContextKey, claims.Username)
		c.Next()
	}
}

// RequireUser rejects requests TokenAuth left anonymous.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserIDFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		c.Next()
	}
}
