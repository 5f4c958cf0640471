package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/model"
	"eventfinder/internal/session"
	"eventfinder/internal/validation"
)

type SessionHandler struct {
	Session *session.Machine
}

type loginForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerForm struct {
	Username        string `json:"username" binding:"required,max=150"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Interests       string `json:"interests"`
	Location        string `json:"location" binding:"max=100"`
}

type profileForm struct {
	Interests *string `json:"interests"`
	Location  *string `json:"location" binding:"omitempty,max=100"`
}

func (h *SessionHandler) snapshot() session.View {
	return h.Session.State().View()
}

func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshot())
}

func (h *SessionHandler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		invalid(c, validation.FromBinding(err))
		return
	}

	err := h.Session.Login(c.Request.Context(), model.Credentials{Username: form.Username, Password: form.Password})
	if err != nil {
		failed(c, err, gin.H{"session": h.snapshot()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.snapshot(), "redirect": "/"})
}

func (h *SessionHandler) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBindJSON(&form); err != nil {
		invalid(c, validation.FromBinding(err))
		return
	}

	in := model.RegisterInput{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
		Profile:  &model.Profile{Interests: form.Interests, Location: form.Location},
	}
	if err := h.Session.Register(c.Request.Context(), in); err != nil {
		failed(c, err, gin.H{"session": h.snapshot()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": h.snapshot(), "redirect": "/login"})
}

func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.Session.Logout(c.Request.Context()); err != nil {
		failed(c, err, gin.H{"session": h.snapshot()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.snapshot(), "redirect": "/login"})
}

// ResetStatus clears the error or registered signal a view has shown.
func (h *SessionHandler) ResetStatus(c *gin.Context) {
	h.Session.ResetStatus()
	c.JSON(http.StatusOK, h.snapshot())
}

func (h *SessionHandler) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.State().User)
}

func (h *SessionHandler) UpdateProfile(c *gin.Context) {
	var form profileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		invalid(c, validation.FromBinding(err))
		return
	}

	patch := model.ProfileUpdate{Interests: form.Interests, Location: form.Location}
	if err := h.Session.UpdateProfile(c.Request.Context(), patch); err != nil {
		failed(c, err, gin.H{"session": h.snapshot()})
		return
	}
	c.JSON(http.StatusOK, h.Session.State().User)
}
