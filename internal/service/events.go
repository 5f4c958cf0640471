package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"eventfinder/internal/gateway"
	"eventfinder/internal/model"
)

type Events struct {
	api gateway.Doer
}

func NewEvents(api gateway.Doer) *Events {
	return &Events{api: api}
}

func (s *Events) Create(ctx context.Context, in model.EventInput) (model.Event, error) {
	var out model.Event
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: eventsPath, Body: in}, &out); err != nil {
		return model.Event{}, err
	}
	return out, nil
}

func (s *Events) List(ctx context.Context, filters model.EventFilters) ([]model.Event, error) {
	var out []model.Event
	req := gateway.Request{Method: http.MethodGet, Path: eventsPath, Query: FilterQuery(filters)}
	if err := s.api.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Event{}
	}
	return out, nil
}

func (s *Events) Get(ctx context.Context, id int64) (model.Event, error) {
	var out model.Event
	path := eventsPath + strconv.FormatInt(id, 10) + "/"
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return model.Event{}, err
	}
	return out, nil
}

// FilterQuery encodes filters the way the backend expects: tags as one
// comma-separated value, empty filters omitted.
func FilterQuery(f model.EventFilters) url.Values {
	q := url.Values{}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		q.Set("location", loc)
	}
	tags := make([]string, 0, len(f.Tags))
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		q.Set("tags", strings.Join(tags, ","))
	}
	return q
}
