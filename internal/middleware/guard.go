package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/guard"
	"eventfinder/internal/session"
)

// SessionSource yields the current session snapshot.
type SessionSource interface {
	State() session.State
}

// Protected serves the route only to a signed-in session.
func Protected(src SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch guard.Protected(src.State()) {
		case guard.Allow:
			c.Next()
		case guard.Wait:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Session loading"})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "redirect": "/login"})
		}
	}
}

// GuestOnly keeps signed-in sessions off the login and register routes.
func GuestOnly(src SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard.GuestOnly(src.State()) == guard.RedirectHome {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"redirect": "/"})
			return
		}
		c.Next()
	}
}
