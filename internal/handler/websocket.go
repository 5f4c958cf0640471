package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"eventfinder/internal/app"
	"eventfinder/internal/hub"
	"eventfinder/internal/model"
	"eventfinder/internal/resource"
	"eventfinder/internal/session"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// WebSocketHandler attaches a view. The view receives a snapshot of each
// topic it asked for, then every later change. Attaching to events mounts
// the list; the last events view detaching unmounts it.
type WebSocketHandler struct {
	Hub     *hub.Hub
	Session *session.Machine
	Events  *app.EventCollection
	Log     *slog.Logger
	// Context bounds refreshes a view starts. The results land in the
	// shared collection, so they outlive the view that asked.
	Context context.Context
}

type clientMessage struct {
	Type     string   `json:"type"`
	Location string   `json:"location,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes; gorilla allows one concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func topicsFromQuery(raw string) []string {
	if raw == "" {
		return []string{hub.TopicSession, hub.TopicEvents}
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		switch t = strings.TrimSpace(t); t {
		case hub.TopicSession, hub.TopicEvents:
			topics = append(topics, t)
		}
	}
	return topics
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	topics := topicsFromQuery(c.Query("topics"))
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown topics"})
		return
	}
	filters := FiltersFromQuery(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ctx := h.Context
	if ctx == nil {
		ctx = context.Background()
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{Topics: topics, Writer: writer}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	for _, topic := range topics {
		switch topic {
		case hub.TopicSession:
			h.send(writer, topic, h.Session.State().View())
		case hub.TopicEvents:
			h.send(writer, topic, h.Events.State())
			if h.Events.State().Status == resource.StatusIdle {
				go h.refresh(ctx, filters)
			}
		}
	}

	ws.SetReadLimit(64 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker((pongWait * 9) / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writer.ping(); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			h.send(writer, "pong", nil)
		case "refresh":
			go h.refresh(ctx, model.EventFilters{Location: msg.Location, Tags: msg.Tags})
		}
	}
}

func (h *WebSocketHandler) send(w *wsWriter, topic string, body any) {
	data, err := hub.Encode(topic, body)
	if err != nil {
		return
	}
	_ = w.Write(data)
}

// refresh lists events; the result reaches views through the hub.
func (h *WebSocketHandler) refresh(ctx context.Context, filters model.EventFilters) {
	if _, err := h.Events.List(ctx, filters); err != nil && h.Log != nil {
		h.Log.Debug("event refresh failed", "err", err)
	}
}
