package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/app"
	"eventfinder/internal/auth"
	"eventfinder/internal/config"
	"eventfinder/internal/devapi"
	"eventfinder/internal/session"
	"eventfinder/internal/store"
	"eventfinder/internal/tokenstore"
)

type stack struct {
	app    *app.App
	router *gin.Engine
	api    *httptest.Server
	tokens tokenstore.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := httptest.NewServer(devapi.NewRouter(devapi.Deps{
		Store:       store.New(),
		TokenConfig: auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
	}))
	t.Cleanup(api.Close)

	return newStackFor(t, api, tokenstore.NewMemory())
}

func newStackFor(t *testing.T, api *httptest.Server, tokens tokenstore.Store) *stack {
	t.Helper()
	cfg := config.Config{
		APIURL:             api.URL + "/api",
		HTTPTimeoutSeconds: 5,
		TokenStore:         config.TokenStoreMemory,
		Port:               3000,
		LogLevel:           "info",
	}
	a, err := app.New(app.Options{Config: cfg, Tokens: tokens})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Close)
	return &stack{app: a, router: NewRouter(a), api: api, tokens: tokens}
}

func (s *stack) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func (s *stack) expect(t *testing.T, method, path string, body any, code int) map[string]any {
	t.Helper()
	w, resp := s.do(t, method, path, body)
	if w.Code != code {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, code, w.Code, w.Body.String())
	}
	return resp
}

var aliceSignup = map[string]string{
	"username":         "alice",
	"email":            "alice@example.com",
	"password":         "s3cret",
	"confirm_password": "s3cret",
	"interests":        "music,art",
	"location":         "Paris",
}

func (s *stack) signIn(t *testing.T) {
	t.Helper()
	s.expect(t, http.MethodPost, "/register", aliceSignup, http.StatusCreated)
	s.expect(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "s3cret"}, http.StatusOK)
}

func TestHealth(t *testing.T) {
	s := newStack(t)
	resp := s.expect(t, http.MethodGet, "/health", nil, http.StatusOK)
	if resp["ok"] != true {
		t.Fatalf("unexpected body %v", resp)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newStack(t)
	form := map[string]string{"username": "alice", "email": "nope", "password": "a", "confirm_password": "b"}
	resp := s.expect(t, http.MethodPost, "/register", form, http.StatusBadRequest)
	fields, _ := resp["fields"].(map[string]any)
	if fields["email"] == nil || fields["confirm_password"] == nil {
		t.Fatalf("expected email and confirm_password errors, got %v", resp)
	}
	if st := s.app.Session.State().Status; st != session.StatusIdle {
		t.Fatalf("validation must not reach the session, got %s", st)
	}
}

func TestSessionFlow(t *testing.T) {
	s := newStack(t)

	resp := s.expect(t, http.MethodPost, "/register", aliceSignup, http.StatusCreated)
	if resp["redirect"] != "/login" {
		t.Fatalf("expected redirect to /login, got %v", resp["redirect"])
	}
	if st := s.app.Session.State(); st.Status != session.StatusRegistered || st.Token != "" {
		t.Fatalf("register must not authenticate: %+v", st)
	}

	resp = s.expect(t, http.MethodPost, "/register", aliceSignup, http.StatusBadRequest)
	if !strings.Contains(resp["error"].(string), "already exists") {
		t.Fatalf("expected duplicate username error, got %v", resp)
	}

	resp = s.expect(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wrong"}, http.StatusBadRequest)
	if resp["error"] != "Unable to log in with provided credentials." {
		t.Fatalf("unexpected login error %v", resp["error"])
	}
	if st := s.app.Session.State(); st.Status != session.StatusError || st.Token != "" || st.User != nil {
		t.Fatalf("unexpected state after failed login: %+v", st)
	}

	s.expect(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "s3cret"}, http.StatusOK)
	st := s.app.Session.State()
	if st.Status != session.StatusAuthenticated || st.User == nil || st.User.Username != "alice" {
		t.Fatalf("unexpected state after login: %+v", st)
	}
	if tok, ok, _ := s.tokens.Get(context.Background()); !ok || tok != st.Token {
		t.Fatalf("token must be persisted")
	}

	resp = s.expect(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "s3cret"}, http.StatusConflict)
	if resp["redirect"] != "/" {
		t.Fatalf("expected redirect home, got %v", resp)
	}

	resp = s.expect(t, http.MethodGet, "/profile", nil, http.StatusOK)
	profile, _ := resp["profile"].(map[string]any)
	if profile["location"] != "Paris" || resp["username"] != "alice" {
		t.Fatalf("unexpected profile %v", resp)
	}

	resp = s.expect(t, http.MethodPut, "/profile", map[string]string{"location": "Rome"}, http.StatusOK)
	profile, _ = resp["profile"].(map[string]any)
	if profile["location"] != "Rome" || profile["interests"] != "music,art" || resp["username"] != "alice" {
		t.Fatalf("expected merged profile, got %v", resp)
	}

	s.expect(t, http.MethodPost, "/logout", nil, http.StatusOK)
	if _, ok, _ := s.tokens.Get(context.Background()); ok {
		t.Fatalf("logout must clear the token store")
	}
	resp = s.expect(t, http.MethodGet, "/profile", nil, http.StatusUnauthorized)
	if resp["redirect"] != "/login" {
		t.Fatalf("expected redirect to /login, got %v", resp)
	}
}

func TestHydration(t *testing.T) {
	s := newStack(t)
	s.signIn(t)

	restarted := newStackFor(t, s.api, s.tokens)
	if err := restarted.app.Session.LoadStoredSession(context.Background()); err != nil {
		t.Fatalf("LoadStoredSession: %v", err)
	}
	if !restarted.app.Session.State().Authenticated() {
		t.Fatalf("expected restored session")
	}
	restarted.expect(t, http.MethodGet, "/profile", nil, http.StatusOK)
}

func TestHydration_StaleToken(t *testing.T) {
	s := newStack(t)
	tokens := tokenstore.NewMemory()
	if err := tokens.Set(context.Background(), "stale"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	restarted := newStackFor(t, s.api, tokens)

	if err := restarted.app.Session.LoadStoredSession(context.Background()); err == nil {
		t.Fatalf("expected the rejected profile fetch to be reported")
	}
	st := restarted.app.Session.State()
	if st.Status != session.StatusIdle || st.Token != "" || st.User != nil {
		t.Fatalf("unexpected state %+v", st)
	}
	if _, ok, _ := tokens.Get(context.Background()); ok {
		t.Fatalf("stale token must be purged")
	}
}

func TestEvents(t *testing.T) {
	s := newStack(t)
	event := map[string]string{
		"name": "Jazz night", "description": "Live trio", "date": "2025-06-01",
		"time": "20:00", "location": "Paris", "tags": "music,live",
	}

	s.expect(t, http.MethodPost, "/create-event", event, http.StatusUnauthorized)
	s.signIn(t)

	resp := s.expect(t, http.MethodPost, "/create-event", map[string]string{"name": "x", "date": "June 1st"}, http.StatusBadRequest)
	if resp["fields"] == nil {
		t.Fatalf("expected field errors, got %v", resp)
	}

	resp = s.expect(t, http.MethodPost, "/create-event", event, http.StatusCreated)
	created, _ := resp["event"].(map[string]any)
	if created["name"] != "Jazz night" || created["time"] != "20:00:00" {
		t.Fatalf("unexpected created event %v", resp)
	}
	if cur := s.app.Events.State().Current; cur == nil || cur.Name != "Jazz night" {
		t.Fatalf("create must set the current event")
	}

	resp = s.expect(t, http.MethodGet, "/events?location=paris&tags=art,live", nil, http.StatusOK)
	items, _ := resp["items"].([]any)
	if len(items) != 1 || resp["status"] != "success" {
		t.Fatalf("unexpected list %v", resp)
	}
	resp = s.expect(t, http.MethodGet, "/?location=berlin", nil, http.StatusOK)
	if items, _ := resp["items"].([]any); items == nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %v", resp)
	}

	resp = s.expect(t, http.MethodGet, "/event/1", nil, http.StatusOK)
	if resp["location"] != "Paris" {
		t.Fatalf("unexpected event %v", resp)
	}
	s.expect(t, http.MethodGet, "/event/abc", nil, http.StatusBadRequest)
	resp = s.expect(t, http.MethodGet, "/event/999", nil, http.StatusNotFound)
	if resp["error"] != "Not found." {
		t.Fatalf("unexpected error %v", resp)
	}
	if st := s.app.Events.State(); st.Status != "error" || st.Current != nil {
		t.Fatalf("failed get must leave no current event: %+v", st)
	}

	before := s.app.Events.State()
	w, _ := s.do(t, http.MethodGet, "/events.ics", nil)
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "BEGIN:VEVENT") {
		t.Fatalf("expected an empty feed of the listed items, got %d: %s", w.Code, w.Body.String())
	}

	w, _ = s.do(t, http.MethodGet, "/events.ics?location=paris", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "SUMMARY:Jazz night") {
		t.Fatalf("expected event in feed: %s", w.Body.String())
	}
	if after := s.app.Events.State(); after.Revision != before.Revision || len(after.Items) != 0 {
		t.Fatalf("a filtered export must not touch the listed events: %+v", after)
	}
}

func TestCalendar_ExportsListedItems(t *testing.T) {
	s := newStack(t)
	s.signIn(t)
	for _, name := range []string{"Jazz night", "Poetry slam"} {
		s.expect(t, http.MethodPost, "/create-event", map[string]string{
			"name": name, "description": "d", "date": "2025-06-01",
			"time": "20:00", "location": "Paris", "tags": "music",
		}, http.StatusCreated)
	}
	s.expect(t, http.MethodGet, "/events?tags=music", nil, http.StatusOK)
	rev := s.app.Events.State().Revision

	w, _ := s.do(t, http.MethodGet, "/events.ics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "SUMMARY:Jazz night") || !strings.Contains(body, "SUMMARY:Poetry slam") {
		t.Fatalf("expected both listed events in feed: %s", body)
	}
	if s.app.Events.State().Revision != rev {
		t.Fatalf("export must not change the collection")
	}
}

func TestEvents_BackendDown(t *testing.T) {
	s := newStack(t)
	s.api.Close()

	resp := s.expect(t, http.MethodGet, "/events", nil, http.StatusBadGateway)
	if resp["error"] == "" {
		t.Fatalf("expected an error detail, got %v", resp)
	}
}
