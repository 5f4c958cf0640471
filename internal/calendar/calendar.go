// Package calendar renders fetched events as an iCalendar feed.
package calendar

import (
	"errors"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventfinder/internal/model"
)

const (
	productID = "-//eventfinder//events//EN"
	duration  = time.Hour
)

// ErrNoEvents is returned when none of the events had a usable start time.
var ErrNoEvents = errors.New("calendar: no exportable events")

// now stamps DTSTAMP for events that carry no timestamps.
var now = time.Now

// UID is the stable identifier of an event inside exported feeds.
func UID(id int64) string {
	return "event-" + strconv.FormatInt(id, 10) + "@eventfinder"
}

// Export builds a VCALENDAR with one VEVENT per event, interpreting dates
// and times in loc. Events whose date or time cannot be parsed are left out
// and counted in skipped. An empty input yields an empty calendar.
func Export(events []model.Event, loc *time.Location) (data []byte, skipped int, err error) {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		start, perr := ev.StartsAt(loc)
		if perr != nil {
			skipped++
			continue
		}

		ve := cal.AddEvent(UID(ev.ID))
		ve.SetDtStampTime(stamp(ev))
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt)
		}
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(duration))
		ve.SetSummary(ev.Name)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		for _, tag := range ev.TagList() {
			ve.AddProperty(ical.ComponentPropertyCategories, tag)
		}
		if ev.CreatorUsername != "" {
			ve.SetOrganizer("mailto:"+ev.CreatorUsername+"@eventfinder", ical.WithCN(ev.CreatorUsername))
		}
	}

	if len(events) > 0 && skipped == len(events) {
		return nil, skipped, ErrNoEvents
	}
	return []byte(cal.Serialize()), skipped, nil
}

func stamp(ev model.Event) time.Time {
	switch {
	case !ev.UpdatedAt.IsZero():
		return ev.UpdatedAt
	case !ev.CreatedAt.IsZero():
		return ev.CreatedAt
	}
	return now()
}
