package service

import (
	"context"
	"net/http"

	"eventfinder/internal/gateway"
	"eventfinder/internal/model"
)

// userWire accepts both shapes the profile endpoint is known to return: the
// full user with a nested profile, or the bare profile fields. Pointers
// keep track of which fields the response carried.
type userWire struct {
	ID        int64        `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email"`
	Profile   *profileWire `json:"profile"`
	Interests *string      `json:"interests"`
	Location  *string      `json:"location"`
}

type profileWire struct {
	Interests *string `json:"interests"`
	Location  *string `json:"location"`
}

// fields returns the profile fields present in the response, nested ones
// taking precedence over flat ones.
func (w userWire) fields() model.ProfileUpdate {
	f := model.ProfileUpdate{Interests: w.Interests, Location: w.Location}
	if w.Profile != nil {
		if w.Profile.Interests != nil {
			f.Interests = w.Profile.Interests
		}
		if w.Profile.Location != nil {
			f.Location = w.Profile.Location
		}
	}
	return f
}

// canonical reads the response as a complete record: absent profile fields
// are empty.
func (w userWire) canonical() model.User {
	u := model.User{ID: w.ID, Username: w.Username, Email: w.Email}
	f := w.fields()
	if w.Profile == nil && f.Interests == nil && f.Location == nil {
		return u
	}
	p := model.Profile{}
	if f.Interests != nil {
		p.Interests = *f.Interests
	}
	if f.Location != nil {
		p.Location = *f.Location
	}
	u.Profile = &p
	return u
}

func (w userWire) patch() model.UserPatch {
	return model.UserPatch{ID: w.ID, Username: w.Username, Email: w.Email, Profile: w.fields()}
}

type Profile struct {
	api gateway.Doer
}

func NewProfile(api gateway.Doer) *Profile {
	return &Profile{api: api}
}

func (s *Profile) Get(ctx context.Context) (model.User, error) {
	var out userWire
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: profilePath}, &out); err != nil {
		return model.User{}, err
	}
	return out.canonical(), nil
}

// Update sends the partial profile and returns the fields the backend
// echoed. Fields missing from the response are left out of the patch.
func (s *Profile) Update(ctx context.Context, patch model.ProfileUpdate) (model.UserPatch, error) {
	var out userWire
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodPut, Path: profilePath, Body: patch}, &out); err != nil {
		return model.UserPatch{}, err
	}
	return out.patch(), nil
}
