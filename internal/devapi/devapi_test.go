package devapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
	"eventfinder/internal/middleware"
	"eventfinder/internal/store"
)

var testTokenConfig = auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

func newTestRouter(limiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(Deps{
		Store:        store.New(),
		TokenConfig:  testTokenConfig,
		LoginLimiter: limiter,
		Now:          func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
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
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func registerAndLogin(t *testing.T, r http.Handler, username string) string {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/users/register/", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "pw-" + username,
		"profile":  map[string]string{"interests": "music", "location": "Paris"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = call(t, r, http.MethodPost, "/api/users/login/", "", map[string]string{"username": username, "password": "pw-" + username})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatalf("expected token")
	}
	return resp.Token
}

func TestRegister_DuplicateUsername(t *testing.T) {
	r := newTestRouter(nil)
	registerAndLogin(t, r, "alice")

	w := call(t, r, http.MethodPost, "/api/users/register/", "", map[string]string{"username": "alice", "password": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"username":["A user with that username already exists."]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	r := newTestRouter(nil)
	w := call(t, r, http.MethodPost, "/api/users/register/", "", map[string]string{"email": "not-an-email"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var errs map[string][]string
	decode(t, w, &errs)
	for _, field := range []string{"username", "password", "email"} {
		if len(errs[field]) == 0 {
			t.Fatalf("expected an error for %s, got %v", field, errs)
		}
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	r := newTestRouter(nil)
	registerAndLogin(t, r, "alice")

	w := call(t, r, http.MethodPost, "/api/users/login/", "", map[string]string{"username": "alice", "password": "wrong"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"non_field_errors":["Unable to log in with provided credentials."]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestLogin_Throttled(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	defer limiter.Stop()
	r := newTestRouter(limiter)

	creds := map[string]string{"username": "ghost", "password": "x"}
	if w := call(t, r, http.MethodPost, "/api/users/login/", "", creds); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := call(t, r, http.MethodPost, "/api/users/login/", "", creds); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestProfile_ReturnsProfileFieldsOnly(t *testing.T) {
	r := newTestRouter(nil)
	token := registerAndLogin(t, r, "alice")

	w := call(t, r, http.MethodGet, "/api/users/profile/", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"interests":"music","location":"Paris"}` {
		t.Fatalf("unexpected body %s", got)
	}

	w = call(t, r, http.MethodPut, "/api/users/profile/", token, map[string]string{"location": "Rome"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"interests":"music","location":"Rome"}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestProfile_RequiresToken(t *testing.T) {
	r := newTestRouter(nil)

	w := call(t, r, http.MethodGet, "/api/users/profile/", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"detail":"Authentication credentials were not provided."}` {
		t.Fatalf("unexpected body %s", got)
	}

	w = call(t, r, http.MethodGet, "/api/users/profile/", "forged", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"detail":"Invalid token."}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestEvents_CreateListGet(t *testing.T) {
	r := newTestRouter(nil)
	token := registerAndLogin(t, r, "alice")

	w := call(t, r, http.MethodPost, "/api/events/", "", map[string]string{"name": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: expected 401, got %d", w.Code)
	}

	w = call(t, r, http.MethodPost, "/api/events/", token, map[string]string{
		"name": "Jazz night", "description": "Live trio", "date": "2025-06-01", "time": "20:00", "location": "Paris", "tags": "music,live",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID              int64  `json:"id"`
		Time            string `json:"time"`
		CreatorUsername string `json:"creator_username"`
	}
	decode(t, w, &created)
	if created.ID == 0 || created.Time != "20:00:00" || created.CreatorUsername != "alice" {
		t.Fatalf("unexpected created event %+v", created)
	}

	w = call(t, r, http.MethodGet, "/api/events/?location=paris&tags=art,live", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list []map[string]any
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 event, got %d", len(list))
	}

	w = call(t, r, http.MethodGet, "/api/events/?tags=sport", "", nil)
	if w.Body.String() != "[]" {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}

	w = call(t, r, http.MethodGet, "/api/events/1/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	w = call(t, r, http.MethodGet, "/api/events/999/", "", nil)
	if w.Code != http.StatusNotFound || w.Body.String() != `{"detail":"Not found."}` {
		t.Fatalf("unknown event: got %d %s", w.Code, w.Body.String())
	}
}

func TestEvents_CreateValidation(t *testing.T) {
	r := newTestRouter(nil)
	token := registerAndLogin(t, r, "alice")

	w := call(t, r, http.MethodPost, "/api/events/", token, map[string]string{"name": "Gig"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var errs map[string][]string
	decode(t, w, &errs)
	for _, field := range []string{"description", "date", "time", "location"} {
		if len(errs[field]) == 0 {
			t.Fatalf("expected an error for %s, got %v", field, errs)
		}
	}

	w = call(t, r, http.MethodPost, "/api/events/", token, map[string]string{
		"name": "Gig", "description": "d", "date": "01/06/2025", "time": "8pm", "location": "Paris",
	})
	errs = nil
	decode(t, w, &errs)
	if len(errs["date"]) == 0 || len(errs["time"]) == 0 {
		t.Fatalf("expected date and time format errors, got %v", errs)
	}
}
