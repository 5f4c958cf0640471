// Package app assembles the client: token store, API gateway, resource
// services, session and event state, and the hub that views attach to.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"eventfinder/internal/config"
	"eventfinder/internal/gateway"
	"eventfinder/internal/hub"
	"eventfinder/internal/logging"
	"eventfinder/internal/model"
	"eventfinder/internal/resource"
	"eventfinder/internal/service"
	"eventfinder/internal/session"
	"eventfinder/internal/tokenstore"
)

type EventCollection = resource.Collection[model.Event, model.EventFilters, model.EventInput]

type App struct {
	Config    config.Config
	Log       *slog.Logger
	Tokens    tokenstore.Store
	API       *gateway.Client
	Session   *session.Machine
	Events    *EventCollection
	// EventsAPI reaches the events endpoints without touching Events.
	EventsAPI *service.Events
	Hub       *hub.Hub

	ctx    context.Context
	cancel context.CancelFunc
	detach []func()
}

type Options struct {
	Config config.Config
	Logger *slog.Logger
	// Tokens overrides the store selected by Config.TokenStore.
	Tokens     tokenstore.Store
	HTTPClient *http.Client
}

func New(opts Options) (*App, error) {
	log := logging.OrDiscard(opts.Logger)

	tokens := opts.Tokens
	if tokens == nil {
		var err error
		if tokens, err = NewTokenStore(opts.Config); err != nil {
			return nil, err
		}
	}

	api, err := gateway.New(gateway.Options{
		BaseURL:    opts.Config.APIURL,
		Tokens:     tokens,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Config.HTTPTimeout(),
		Logger:     log.With("component", "gateway"),
	})
	if err != nil {
		return nil, err
	}

	events := service.NewEvents(api)
	a := &App{
		Config:    opts.Config,
		Log:       log,
		Tokens:    tokens,
		API:       api,
		EventsAPI: events,
		Session: session.New(
			service.NewAuth(api),
			service.NewProfile(api),
			tokens,
			log.With("component", "session"),
		),
		Events: resource.New[model.Event, model.EventFilters, model.EventInput](
			hub.TopicEvents,
			events,
			log.With("component", "events"),
		),
		Hub: hub.New(),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.wire()
	return a, nil
}

// Context is canceled by Close. Work started on behalf of attached views
// runs under it, so one view detaching does not cancel requests whose
// results other views are waiting for.
func (a *App) Context() context.Context { return a.ctx }

// NewTokenStore builds the store named by cfg.TokenStore.
func NewTokenStore(cfg config.Config) (tokenstore.Store, error) {
	switch cfg.TokenStore {
	case config.TokenStoreMemory:
		return tokenstore.NewMemory(), nil
	case config.TokenStoreFile, "":
		return tokenstore.NewFile(cfg.TokenFile), nil
	case config.TokenStoreSealed:
		sealed, err := tokenstore.NewSealed(cfg.TokenFile, cfg.TokenPassphrase)
		if err != nil {
			return nil, err
		}
		return sealed, nil
	}
	return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
}

// wire publishes every committed state change to the attached views and
// resets the events collection when its last view goes away.
func (a *App) wire() {
	a.detach = append(a.detach,
		a.Session.Subscribe(func(st session.State) {
			if err := a.Hub.Publish(hub.TopicSession, st.View()); err != nil {
				a.Log.Error("publish session failed", "err", err)
			}
		}),
		a.Events.Subscribe(func(st resource.State[model.Event]) {
			if err := a.Hub.Publish(hub.TopicEvents, st); err != nil {
				a.Log.Error("publish events failed", "err", err)
			}
		}),
		a.Hub.OnLastDetach(hub.TopicEvents, a.Events.Reset),
	)
}

// Close stops publishing to the hub, removes the unmount hook and cancels
// outstanding view work.
func (a *App) Close() {
	a.cancel()
	for _, fn := range a.detach {
		fn()
	}
	a.detach = nil
}
