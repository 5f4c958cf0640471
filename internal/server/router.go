package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/app"
	"eventfinder/internal/handler"
	"eventfinder/internal/middleware"
	"eventfinder/internal/validation"
)

// NewRouter exposes the views of the client as JSON routes. Handlers read
// snapshots and dispatch operations; they keep no state of their own.
func NewRouter(a *app.App) *gin.Engine {
	validation.Setup()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	sessions := &handler.SessionHandler{Session: a.Session}
	events := &handler.EventsHandler{Events: a.Events, Source: a.EventsAPI, Location: time.Local}
	ws := &handler.WebSocketHandler{Hub: a.Hub, Session: a.Session, Events: a.Events, Log: a.Log, Context: a.Context()}

	r.GET("/session", sessions.Get)
	r.POST("/session/reset", sessions.ResetStatus)
	r.POST("/logout", sessions.Logout)

	guest := r.Group("/")
	guest.Use(middleware.GuestOnly(a.Session))
	guest.POST("/login", sessions.Login)
	guest.POST("/register", sessions.Register)

	protected := r.Group("/")
	protected.Use(middleware.Protected(a.Session))
	protected.GET("/profile", sessions.Profile)
	protected.PUT("/profile", sessions.UpdateProfile)
	protected.POST("/create-event", events.Create)

	r.GET("/", events.List)
	r.GET("/events", events.List)
	r.GET("/events.ics", events.Calendar)
	r.GET("/event/:id", events.Get)

	r.GET("/ws", ws.Serve)

	return r
}
