// Package service maps each domain operation onto exactly one gateway call.
// Services hold no state and never retry.
package service

import (
	"context"
	"net/http"

	"eventfinder/internal/gateway"
	"eventfinder/internal/model"
)

const (
	registerPath = "/users/register/"
	loginPath    = "/users/login/"
	profilePath  = "/users/profile/"
	eventsPath   = "/events/"
)

type Auth struct {
	api gateway.Doer
}

func NewAuth(api gateway.Doer) *Auth {
	return &Auth{api: api}
}

func (s *Auth) Register(ctx context.Context, in model.RegisterInput) (model.User, error) {
	var out userWire
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: registerPath, Body: in}, &out); err != nil {
		return model.User{}, err
	}
	return out.canonical(), nil
}

// Login exchanges credentials for a bearer token.
func (s *Auth) Login(ctx context.Context, creds model.Credentials) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: loginPath, Body: creds}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &gateway.Failure{Kind: gateway.KindApplication, Status: http.StatusOK, Detail: "Login failed: No token received"}
	}
	return out.Token, nil
}
