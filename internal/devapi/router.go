// Package devapi is a small implementation of the events REST API used for
// local development and as the backend in integration tests.
package devapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
	"eventfinder/internal/logging"
	"eventfinder/internal/middleware"
	"eventfinder/internal/store"
	"eventfinder/internal/validation"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	// LoginLimiter throttles login attempts per client IP. Nil disables it.
	LoginLimiter *middleware.RateLimiter
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewRouter(deps Deps) *gin.Engine {
	validation.Setup()
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	api.Use(middleware.TokenAuth(deps.TokenConfig))

	users := &UserHandler{Store: deps.Store, TokenConfig: deps.TokenConfig, Log: logging.OrDiscard(deps.Logger), Now: deps.Now}
	api.POST("/users/register/", users.Register)
	login := []gin.HandlerFunc{users.Login}
	if deps.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{middleware.Throttle(deps.LoginLimiter)}, login...)
	}
	api.POST("/users/login/", login...)

	account := api.Group("/users/profile")
	account.Use(middleware.RequireUser())
	account.GET("/", users.Profile)
	account.PUT("/", users.UpdateProfile)
	account.PATCH("/", users.UpdateProfile)

	events := &EventHandler{Store: deps.Store, Now: deps.Now}
	api.GET("/events/", events.List)
	api.POST("/events/", middleware.RequireUser(), events.Create)
	api.GET("/events/:id/", events.Get)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	})
	return r
}
