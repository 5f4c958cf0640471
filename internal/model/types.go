package model

import (
	"strings"
	"time"
)

type Profile struct {
	Interests string `json:"interests"`
	Location  string `json:"location"`
}

// InterestList splits the comma-separated interests field.
func (p Profile) InterestList() []string {
	return splitList(p.Interests)
}

type User struct {
	ID       int64    `json:"id,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Profile  *Profile `json:"profile,omitempty"`
}

// UserPatch is a user as echoed by a partial update. Zero scalars and nil
// profile fields were absent from the response.
type UserPatch struct {
	ID       int64
	Username string
	Email    string
	Profile  ProfileUpdate
}

// Apply overlays the fields present in patch on u. Profile fields are
// merged one at a time; absent ones keep their current value.
func (u User) Apply(patch UserPatch) User {
	out := u
	if patch.ID != 0 {
		out.ID = patch.ID
	}
	if patch.Username != "" {
		out.Username = patch.Username
	}
	if patch.Email != "" {
		out.Email = patch.Email
	}
	if patch.Profile.Interests == nil && patch.Profile.Location == nil {
		return out
	}

	p := Profile{}
	if u.Profile != nil {
		p = *u.Profile
	}
	if patch.Profile.Interests != nil {
		p.Interests = *patch.Profile.Interests
	}
	if patch.Profile.Location != nil {
		p.Location = *patch.Profile.Location
	}
	out.Profile = &p
	return out
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Profile  *Profile `json:"profile,omitempty"`
}

// ProfileUpdate carries the fields a caller wants changed; nil fields are
// left out of the request body.
type ProfileUpdate struct {
	Interests *string `json:"interests,omitempty"`
	Location  *string `json:"location,omitempty"`
}

type Event struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Location        string    `json:"location"`
	Tags            string    `json:"tags,omitempty"`
	Creator         int64     `json:"creator,omitempty"`
	CreatorUsername string    `json:"creator_username,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

func (e Event) TagList() []string {
	return splitList(e.Tags)
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// StartsAt combines Date and Time in loc. Times without seconds are
// accepted as well.
func (e Event) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	clock := e.Time
	if len(clock) == len("15:04") {
		clock += ":00"
	}
	return time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+clock, loc)
}

type EventInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Tags        string `json:"tags,omitempty"`
}

type EventFilters struct {
	Location string
	Tags     []string
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
