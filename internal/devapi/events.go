package devapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/middleware"
	"eventfinder/internal/model"
	"eventfinder/internal/store"
	"eventfinder/internal/validation"
)

type EventHandler struct {
	Store *store.Store
	Now   func() time.Time
}

type eventBody struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Time        string `json:"time" binding:"required"`
	Location    string `json:"location" binding:"required,max=200"`
	Tags        string `json:"tags" binding:"max=200"`
}

func (h *EventHandler) List(c *gin.Context) {
	filters := model.EventFilters{Location: c.Query("location")}
	if raw := c.Query("tags"); raw != "" {
		filters.Tags = strings.Split(raw, ",")
	}
	c.JSON(http.StatusOK, h.Store.ListEvents(filters))
}

func (h *EventHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	ev, ok := h.Store.GetEvent(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *EventHandler) Create(c *gin.Context) {
	var body eventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, validation.FromBinding(err))
		return
	}

	errs := validation.Errors{}
	if _, err := time.Parse(model.DateLayout, body.Date); err != nil {
		errs.Add("date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
	}
	clock, ok := normalizeClock(body.Time)
	if !ok {
		errs.Add("time", "Time has wrong format. Use one of these formats instead: hh:mm[:ss].")
	}
	if !errs.Empty() {
		badRequest(c, errs)
		return
	}

	userID, _ := middleware.UserIDFromContext(c)
	ev, err := h.Store.CreateEvent(userID, model.EventInput{
		Name:        body.Name,
		Description: body.Description,
		Date:        body.Date,
		Time:        clock,
		Location:    body.Location,
		Tags:        body.Tags,
	}, h.Now())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Event creation failed."})
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// normalizeClock accepts hh:mm or hh:mm:ss and returns hh:mm:ss.
func normalizeClock(raw string) (string, bool) {
	for _, layout := range []string{model.TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(model.TimeLayout), true
		}
	}
	return "", false
}
