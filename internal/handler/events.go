package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/app"
	"eventfinder/internal/calendar"
	"eventfinder/internal/model"
	"eventfinder/internal/validation"
)

// EventLister fetches events without going through the shared collection.
type EventLister interface {
	List(ctx context.Context, filters model.EventFilters) ([]model.Event, error)
}

type EventsHandler struct {
	Events *app.EventCollection
	Source EventLister
	// Location is the zone event dates and times are read in for export.
	Location *time.Location
}

type eventForm struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Time        string `json:"time" binding:"required"`
	Location    string `json:"location" binding:"required,max=200"`
	Tags        string `json:"tags" binding:"max=200"`
}

// FiltersFromQuery reads ?location= and the comma-separated ?tags=.
func FiltersFromQuery(c *gin.Context) model.EventFilters {
	f := model.EventFilters{Location: strings.TrimSpace(c.Query("location"))}
	for _, t := range strings.Split(c.Query("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	return f
}

func (h *EventsHandler) List(c *gin.Context) {
	if _, err := h.Events.List(c.Request.Context(), FiltersFromQuery(c)); err != nil {
		failed(c, err, gin.H{"events": h.Events.State()})
		return
	}
	c.JSON(http.StatusOK, h.Events.State())
}

func (h *EventsHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		invalid(c, validation.Errors{"id": {"A valid integer is required."}})
		return
	}
	ev, err := h.Events.Get(c.Request.Context(), id)
	if err != nil {
		failed(c, err, gin.H{"events": h.Events.State()})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *EventsHandler) Create(c *gin.Context) {
	var form eventForm
	if err := c.ShouldBindJSON(&form); err != nil {
		invalid(c, validation.FromBinding(err))
		return
	}
	errs := validation.Errors{}
	if _, err := time.Parse(model.DateLayout, form.Date); err != nil {
		errs.Add("date", "Use the YYYY-MM-DD format.")
	}
	if !validClock(form.Time) {
		errs.Add("time", "Use the HH:MM or HH:MM:SS format.")
	}
	if !errs.Empty() {
		invalid(c, errs)
		return
	}

	ev, err := h.Events.Create(c.Request.Context(), model.EventInput{
		Name:        form.Name,
		Description: form.Description,
		Date:        form.Date,
		Time:        form.Time,
		Location:    form.Location,
		Tags:        form.Tags,
	})
	if err != nil {
		failed(c, err, gin.H{"events": h.Events.State()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": ev, "redirect": "/"})
}

// Calendar returns events as an iCalendar feed: the listed items when the
// request carries no filters, otherwise a fetch that leaves the collection
// untouched.
func (h *EventsHandler) Calendar(c *gin.Context) {
	items, err := h.exportItems(c)
	if err != nil {
		failed(c, err, nil)
		return
	}
	data, skipped, err := calendar.Export(items, h.Location)
	if errors.Is(err, calendar.ErrNoEvents) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No event has a usable date and time", "skipped": skipped})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Skipped-Events", strconv.Itoa(skipped))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

func (h *EventsHandler) exportItems(c *gin.Context) ([]model.Event, error) {
	filters := FiltersFromQuery(c)
	if st := h.Events.State(); filters.Location == "" && len(filters.Tags) == 0 && st.Items != nil {
		return st.Items, nil
	}
	return h.Source.List(c.Request.Context(), filters)
}

func validClock(raw string) bool {
	for _, layout := range []string{model.TimeLayout, "15:04"} {
		if _, err := time.Parse(layout, raw); err == nil {
			return true
		}
	}
	return false
}
