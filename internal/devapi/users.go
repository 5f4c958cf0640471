package devapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
	"eventfinder/internal/middleware"
	"eventfinder/internal/model"
	"eventfinder/internal/store"
	"eventfinder/internal/validation"
)

type UserHandler struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Log         *slog.Logger
	Now         func() time.Time
}

type registerBody struct {
	Username  string         `json:"username" binding:"required,max=150"`
	Email     string         `json:"email" binding:"omitempty,email"`
	Password  string         `json:"password" binding:"required"`
	Profile   *model.Profile `json:"profile"`
	Interests string         `json:"interests"`
	Location  string         `json:"location" binding:"max=100"`
}

type loginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func badRequest(c *gin.Context, errs validation.Errors) {
	c.JSON(http.StatusBadRequest, errs)
}

func (h *UserHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, validation.FromBinding(err))
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" {
		badRequest(c, validation.Errors{"username": {"This field may not be blank."}})
		return
	}

	profile := model.Profile{Interests: body.Interests, Location: body.Location}
	if body.Profile != nil {
		profile = *body.Profile
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Password hashing failed."})
		return
	}

	user, err := h.Store.CreateUser(body.Username, body.Email, hash, profile, h.Now())
	if errors.Is(err, store.ErrUserExists) {
		badRequest(c, validation.Errors{"username": {"A user with that username already exists."}})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Registration failed."})
		return
	}

	h.Log.Info("user registered", "user_id", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, user.Public())
}

func (h *UserHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, validation.FromBinding(err))
		return
	}

	user, ok := h.Store.UserByUsername(body.Username)
	if !ok || auth.CheckPassword(user.PasswordHash, body.Password) != nil {
		badRequest(c, validation.Errors{validation.NonField: {"Unable to log in with provided credentials."}})
		return
	}

	token, err := auth.CreateToken(user.ID, user.Username, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Token creation failed."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Profile returns only the profile fields, like the production backend.
func (h *UserHandler) Profile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user.Profile)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var patch struct {
		Interests *string `json:"interests"`
		Location  *string `json:"location" binding:"omitempty,max=100"`
	}
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, validation.FromBinding(err))
		return
	}

	profile, err := h.Store.UpdateProfile(user.ID, model.ProfileUpdate{Interests: patch.Interests, Location: patch.Location})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// currentUser resolves the token's user. A token for a deleted user is
// treated as invalid.
func (h *UserHandler) currentUser(c *gin.Context) (store.User, bool) {
	id, _ := middleware.UserIDFromContext(c)
	user, ok := h.Store.UserByID(id)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
		return store.User{}, false
	}
	return user, true
}
