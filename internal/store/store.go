// Package store keeps the development backend's users and events in memory,
// optionally mirrored to a JSON state file.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"eventfinder/internal/logging"
	"eventfinder/internal/model"
)

const (
	tableUsers  = "users"
	tableEvents = "events"

	stateVersion = 1
)

var (
	ErrUserExists = errors.New("user already exists")
	ErrNotFound   = errors.New("not found")
)

type User struct {
	ID           int64         `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"passwordHash"`
	Profile      model.Profile `json:"profile"`
	DateJoined   time.Time     `json:"dateJoined"`
}

// Public strips the password hash.
func (u User) Public() model.User {
	p := u.Profile
	return model.User{ID: u.ID, Username: u.Username, Email: u.Email, Profile: &p}
}

type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex
	log       *slog.Logger

	usersByID    map[int64]User
	userIDByName map[string]int64
	eventsByID   map[int64]model.Event

	seq *seqGenerator
}

type Options struct {
	StateFile string
	Logger    *slog.Logger
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		stateFile:    opts.StateFile,
		log:          logging.OrDiscard(opts.Logger),
		usersByID:    make(map[int64]User),
		userIDByName: make(map[string]int64),
		eventsByID:   make(map[int64]model.Event),
		seq:          newSeqGenerator(),
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			s.log.Error("state load failed", "path", s.stateFile, "err", err)
		}
	}
	return s
}

func (s *Store) CreateUser(username, email, passwordHash string, profile model.Profile, now time.Time) (User, error) {
	s.mu.Lock()
	if _, exists := s.userIDByName[username]; exists {
		s.mu.Unlock()
		return User{}, ErrUserExists
	}
	u := User{
		ID:           s.seq.next(tableUsers),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Profile:      profile,
		DateJoined:   now.UTC(),
	}
	s.usersByID[u.ID] = u
	s.userIDByName[username] = u.ID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
	return u, nil
}

func (s *Store) UserByUsername(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIDByName[username]
	if !ok {
		return User{}, false
	}
	return s.usersByID[id], true
}

func (s *Store) UserByID(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	return u, ok
}

// UpdateProfile applies the non-nil fields of patch.
func (s *Store) UpdateProfile(userID int64, patch model.ProfileUpdate) (model.Profile, error) {
	s.mu.Lock()
	u, ok := s.usersByID[userID]
	if !ok {
		s.mu.Unlock()
		return model.Profile{}, ErrNotFound
	}
	if patch.Interests != nil {
		u.Profile.Interests = *patch.Interests
	}
	if patch.Location != nil {
		u.Profile.Location = *patch.Location
	}
	s.usersByID[userID] = u
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
	return u.Profile, nil
}

func (s *Store) CreateEvent(creatorID int64, in model.EventInput, now time.Time) (model.Event, error) {
	s.mu.Lock()
	creator, ok := s.usersByID[creatorID]
	if !ok {
		s.mu.Unlock()
		return model.Event{}, ErrNotFound
	}
	ts := now.UTC()
	ev := model.Event{
		ID:              s.seq.next(tableEvents),
		Name:            in.Name,
		Description:     in.Description,
		Date:            in.Date,
		Time:            in.Time,
		Location:        in.Location,
		Tags:            in.Tags,
		Creator:         creator.ID,
		CreatorUsername: creator.Username,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	s.eventsByID[ev.ID] = ev
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
	return ev, nil
}

func (s *Store) GetEvent(id int64) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.eventsByID[id]
	return ev, ok
}

// ListEvents returns events newest first by date then time. Location is a
// case-insensitive substring match; an event matches the tag filter when
// any of the given tags occurs in its tags.
func (s *Store) ListEvents(filters model.EventFilters) []model.Event {
	location := strings.ToLower(strings.TrimSpace(filters.Location))
	tags := make([]string, 0, len(filters.Tags))
	for _, t := range filters.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}

	s.mu.RLock()
	result := make([]model.Event, 0, len(s.eventsByID))
	for _, ev := range s.eventsByID {
		if location != "" && !strings.Contains(strings.ToLower(ev.Location), location) {
			continue
		}
		if len(tags) > 0 && !matchesAnyTag(ev.Tags, tags) {
			continue
		}
		result = append(result, ev)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if a.Time != b.Time {
			return a.Time > b.Time
		}
		return a.ID > b.ID
	})
	return result
}

func matchesAnyTag(eventTags string, wanted []string) bool {
	haystack := strings.ToLower(eventTags)
	for _, t := range wanted {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

type persistedState struct {
	Version int           `json:"version"`
	Users   []User        `json:"users"`
	Events  []model.Event `json:"events"`
	SavedAt int64         `json:"savedAt"`
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != stateVersion {
		return errors.New("unsupported state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range file.Users {
		if u.ID <= 0 || u.Username == "" {
			continue
		}
		s.usersByID[u.ID] = u
		s.userIDByName[u.Username] = u.ID
		s.seq.observe(tableUsers, u.ID)
	}
	for _, ev := range file.Events {
		if ev.ID <= 0 {
			continue
		}
		s.eventsByID[ev.ID] = ev
		s.seq.observe(tableEvents, ev.ID)
	}
	return nil
}

func (s *Store) snapshotLocked() *persistedState {
	if s.stateFile == "" {
		return nil
	}
	snap := &persistedState{
		Version: stateVersion,
		Users:   make([]User, 0, len(s.usersByID)),
		Events:  make([]model.Event, 0, len(s.eventsByID)),
	}
	for _, u := range s.usersByID {
		snap.Users = append(snap.Users, u)
	}
	for _, ev := range s.eventsByID {
		snap.Events = append(snap.Events, ev)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].ID < snap.Events[j].ID })
	return snap
}

// persist writes snap to the state file via temp file and rename. Failures
// are logged; the in-memory state stays authoritative.
func (s *Store) persist(snap *persistedState) {
	if snap == nil {
		return
	}
	path := s.stateFile

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap.SavedAt = time.Now().UnixMilli()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.log.Error("state marshal failed", "err", err)
		return
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data); err != nil {
		s.log.Error("state write failed", "path", path, "err", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
