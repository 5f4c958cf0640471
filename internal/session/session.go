// Package session holds the authentication state of the client: the bearer
// token, the signed-in user and the status of the last auth operation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"eventfinder/internal/gateway"
	"eventfinder/internal/logging"
	"eventfinder/internal/model"
	"eventfinder/internal/tokenstore"
)

type Status string

const (
	StatusIdle           Status = "idle"
	StatusAuthenticating Status = "authenticating"
	StatusProfileLoading Status = "profile-loading"
	StatusAuthenticated  Status = "authenticated"
	StatusRegistered     Status = "registered"
	StatusError          Status = "error"
)

// ErrSuperseded is returned by an operation whose result was dropped
// because a later Login, LoadStoredSession or Logout started after it.
var ErrSuperseded = errors.New("session: operation superseded")

const noTokenDetail = "No token found, cannot update profile."

type State struct {
	Status   Status           `json:"status"`
	Token    string           `json:"-"`
	User     *model.User      `json:"user"`
	Error    *gateway.Failure `json:"error,omitempty"`
	Revision uint64           `json:"revision"`
}

// Authenticated reports whether both a token and a user are present.
func (s State) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// View is the snapshot shape handed to attached views.
type View struct {
	State
	Authenticated bool `json:"authenticated"`
}

func (s State) View() View {
	return View{State: s, Authenticated: s.Authenticated()}
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		if s.User.Profile != nil {
			p := *s.User.Profile
			u.Profile = &p
		}
		out.User = &u
	}
	return out
}

type Authenticator interface {
	Login(ctx context.Context, creds model.Credentials) (string, error)
	Register(ctx context.Context, in model.RegisterInput) (model.User, error)
}

type Profiles interface {
	Get(ctx context.Context) (model.User, error)
	Update(ctx context.Context, patch model.ProfileUpdate) (model.UserPatch, error)
}

type Machine struct {
	auth    Authenticator
	profile Profiles
	tokens  tokenstore.Store
	log     *slog.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	subs    map[int]func(State)
	nextSub int
}

func New(auth Authenticator, profile Profiles, tokens tokenstore.Store, logger *slog.Logger) *Machine {
	return &Machine{
		auth:    auth,
		profile: profile,
		tokens:  tokens,
		log:     logging.OrDiscard(logger),
		state:   State{Status: StatusIdle},
		subs:    make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn to receive a snapshot after every committed
// transition. Snapshots carry an increasing Revision.
func (m *Machine) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// LoadStoredSession hydrates the session from the token store. A stored
// token the backend no longer accepts is purged and the session stays idle;
// the profile failure is still returned.
func (m *Machine) LoadStoredSession(ctx context.Context) error {
	gen := m.bump()

	token, ok, err := m.tokens.Get(ctx)
	if err != nil {
		f := gateway.StorageFailure(err)
		m.commit(gen, func(s *State) { *s = State{Status: StatusError, Error: f} })
		return f
	}
	if !ok {
		if !m.commit(gen, func(s *State) { *s = State{Status: StatusIdle} }) {
			return ErrSuperseded
		}
		return nil
	}

	if !m.commit(gen, func(s *State) {
		*s = State{Status: StatusProfileLoading, Token: token}
	}) {
		return ErrSuperseded
	}
	return m.loadProfile(ctx, gen, "", StatusIdle)
}

// Login authenticates, persists the token and fetches the profile as one
// operation.
func (m *Machine) Login(ctx context.Context, creds model.Credentials) error {
	gen := m.begin(true, func(s *State) {
		s.Status = StatusAuthenticating
		s.Error = nil
	})

	token, err := m.auth.Login(ctx, creds)
	if err != nil {
		f := gateway.AsFailure(err)
		if !m.current(gen) {
			return ErrSuperseded
		}
		m.purge(ctx)
		m.commit(gen, func(s *State) { *s = State{Status: StatusError, Error: f} })
		return f
	}

	if !m.current(gen) {
		return ErrSuperseded
	}
	if err := m.tokens.Set(ctx, token); err != nil {
		f := gateway.StorageFailure(err)
		m.commit(gen, func(s *State) { *s = State{Status: StatusError, Error: f} })
		return f
	}
	if !m.commit(gen, func(s *State) {
		*s = State{Status: StatusProfileLoading, Token: token}
	}) {
		return ErrSuperseded
	}
	return m.loadProfile(ctx, gen, creds.Username, StatusError)
}

// Register creates an account. It never authenticates: success ends in
// StatusRegistered.
func (m *Machine) Register(ctx context.Context, in model.RegisterInput) error {
	gen := m.begin(false, func(s *State) {
		s.Status = StatusAuthenticating
		s.Error = nil
	})

	_, err := m.auth.Register(ctx, in)
	if err != nil {
		f := gateway.AsFailure(err)
		if !m.commit(gen, func(s *State) {
			s.Status = StatusError
			s.Error = f
		}) {
			return ErrSuperseded
		}
		return f
	}
	if !m.commit(gen, func(s *State) {
		s.Status = StatusRegistered
		s.Error = nil
	}) {
		return ErrSuperseded
	}
	return nil
}

// UpdateProfile sends patch and merges the echoed fields into the user.
// Fields the backend did not echo keep their current value.
func (m *Machine) UpdateProfile(ctx context.Context, patch model.ProfileUpdate) error {
	m.mu.Lock()
	gen := m.gen
	hasToken := m.state.Token != ""
	m.mu.Unlock()

	if !hasToken {
		f := &gateway.Failure{Kind: gateway.KindApplication, Detail: noTokenDetail}
		m.commit(gen, func(s *State) {
			s.Status = StatusError
			s.Error = f
		})
		return f
	}

	updated, err := m.profile.Update(ctx, patch)
	if err != nil {
		f := gateway.AsFailure(err)
		if !m.commit(gen, func(s *State) {
			s.Status = StatusError
			s.Error = f
		}) {
			return ErrSuperseded
		}
		return f
	}
	if !m.commit(gen, func(s *State) {
		base := model.User{}
		if s.User != nil {
			base = *s.User
		}
		merged := base.Apply(updated)
		s.User = &merged
		s.Status = StatusAuthenticated
		s.Error = nil
	}) {
		return ErrSuperseded
	}
	return nil
}

// Logout clears the token store and the in-memory session. The in-memory
// state is cleared even when the store fails.
func (m *Machine) Logout(ctx context.Context) error {
	gen := m.bump()
	err := m.tokens.Clear(ctx)
	m.commit(gen, func(s *State) { *s = State{Status: StatusIdle} })
	if err != nil {
		return gateway.StorageFailure(err)
	}
	return nil
}

// ResetStatus clears an error or registered signal.
func (m *Machine) ResetStatus() {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.commit(gen, func(s *State) {
		if s.Status != StatusError && s.Status != StatusRegistered {
			return
		}
		s.Error = nil
		if s.Authenticated() {
			s.Status = StatusAuthenticated
		} else {
			s.Status = StatusIdle
		}
	})
}

func (m *Machine) loadProfile(ctx context.Context, gen uint64, fallbackUsername string, onFailure Status) error {
	user, err := m.profile.Get(ctx)
	if err != nil {
		f := gateway.AsFailure(err)
		if !m.current(gen) {
			return ErrSuperseded
		}
		m.purge(ctx)
		m.commit(gen, func(s *State) {
			*s = State{Status: onFailure}
			if onFailure == StatusError {
				s.Error = f
			}
		})
		m.log.Warn("profile fetch failed, stored token purged", "err", f)
		return f
	}
	if user.Username == "" {
		user.Username = fallbackUsername
	}
	if !m.commit(gen, func(s *State) {
		s.User = &user
		s.Status = StatusAuthenticated
		s.Error = nil
	}) {
		return ErrSuperseded
	}
	return nil
}

// purge removes the stored token. It runs detached from ctx so a canceled
// request still leaves no stale token behind.
func (m *Machine) purge(ctx context.Context) {
	if err := m.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error("token purge failed", "err", err)
	}
}

func (m *Machine) bump() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

func (m *Machine) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// begin applies the opening transition of an operation and returns the
// generation its completion must match. Auth-affecting operations start a
// new generation.
func (m *Machine) begin(newGeneration bool, fn func(*State)) uint64 {
	m.mu.Lock()
	if newGeneration {
		m.gen++
	}
	gen := m.gen
	m.mu.Unlock()
	m.commit(gen, fn)
	return gen
}

// commit applies fn when gen is still current and notifies subscribers.
func (m *Machine) commit(gen uint64, fn func(*State)) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	prev, rev := m.state.Status, m.state.Revision
	fn(&m.state)
	m.state.Revision = rev + 1
	snap := m.state.clone()
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if prev != snap.Status {
		m.log.Debug("session transition", "from", prev, "to", snap.Status, "revision", snap.Revision)
	}
	for _, fn := range subs {
		fn(snap)
	}
	return true
}
