package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"eventfinder/internal/auth"
	"eventfinder/internal/devapi"
	"eventfinder/internal/hub"
	"eventfinder/internal/resource"
	"eventfinder/internal/store"
	"eventfinder/internal/tokenstore"
)

type envelope struct {
	Type string         `json:"type"`
	Body map[string]any `json:"body"`
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// readUntil skips messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(envelope) bool) envelope {
	t.Helper()
	for {
		if msg := read(t, conn); match(msg) {
			return msg
		}
	}
}

func TestWebSocket_SessionSnapshots(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dial(t, srv, "?topics=session")
	defer conn.Close()

	msg := read(t, conn)
	if msg.Type != hub.TopicSession || msg.Body["status"] != "idle" || msg.Body["authenticated"] != false {
		t.Fatalf("unexpected initial snapshot %+v", msg)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := read(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}

	s.signIn(t)
	msg = readUntil(t, conn, func(m envelope) bool { return m.Body["authenticated"] == true })
	user, _ := msg.Body["user"].(map[string]any)
	if msg.Body["status"] != "authenticated" || user["username"] != "alice" {
		t.Fatalf("unexpected session snapshot %+v", msg)
	}
	if _, leaked := msg.Body["Token"]; leaked {
		t.Fatalf("token must not reach views")
	}
}

func TestWebSocket_EventsMountAndUnmount(t *testing.T) {
	s := newStack(t)
	s.signIn(t)
	s.expect(t, http.MethodPost, "/create-event", map[string]string{
		"name": "Jazz night", "description": "Live trio", "date": "2025-06-01",
		"time": "20:00", "location": "Paris", "tags": "music",
	}, http.StatusCreated)
	s.app.Events.Reset()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dial(t, srv, "?topics=events")
	msg := read(t, conn)
	if msg.Type != hub.TopicEvents || msg.Body["status"] != "idle" {
		t.Fatalf("unexpected initial snapshot %+v", msg)
	}

	msg = readUntil(t, conn, func(m envelope) bool { return m.Body["status"] == "success" })
	items, _ := msg.Body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected the mounted list to load, got %+v", msg)
	}
	if s.app.Hub.Count(hub.TopicEvents) != 1 {
		t.Fatalf("expected one attached view")
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := s.app.Events.State()
		if st.Status == resource.StatusIdle && len(st.Items) == 0 && s.app.Hub.Count(hub.TopicEvents) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected events to reset after the last view detached, got %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_DetachKeepsSharedRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := devapi.NewRouter(devapi.Deps{
		Store:       store.New(),
		TokenConfig: auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
	})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/events/" {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		backend.ServeHTTP(w, r)
	}))
	t.Cleanup(api.Close)
	t.Cleanup(unblock)

	s := newStackFor(t, api, tokenstore.NewMemory())
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	first := dial(t, srv, "?topics=events")
	if msg := read(t, first); msg.Body["status"] != "idle" {
		t.Fatalf("unexpected initial snapshot %+v", msg)
	}
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("mount did not list events")
	}

	second := dial(t, srv, "?topics=events")
	defer second.Close()
	if msg := read(t, second); msg.Body["status"] != "loading" {
		t.Fatalf("expected the second view to join the pending list, got %+v", msg)
	}

	first.Close()
	deadline := time.Now().Add(5 * time.Second)
	for s.app.Hub.Count(hub.TopicEvents) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("first view did not detach")
		}
		time.Sleep(10 * time.Millisecond)
	}
	unblock()

	msg := readUntil(t, second, func(m envelope) bool { return m.Body["status"] != "loading" })
	if msg.Body["status"] != "success" {
		t.Fatalf("a detaching view must not fail the list others wait on, got %+v", msg)
	}
}

func TestWebSocket_UnknownTopic(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?topics=chat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
