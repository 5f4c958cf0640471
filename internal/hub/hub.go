// Package hub fans state snapshots out to the views attached over WebSocket.
package hub

import (
	"encoding/json"
	"sync"
)

const (
	TopicSession = "session"
	TopicEvents  = "events"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one attached view. It receives every message published to
// any of its topics.
type Connection struct {
	Topics []string
	Writer Writer
}

// Message is the envelope written to views.
type Message struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	onDetach    map[string]map[int]func()
	nextHook    int
}

func New() *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		onDetach:    make(map[string]map[int]func()),
	}
}

// OnLastDetach registers fn to run whenever topic loses its last view.
// cancel removes the hook.
func (h *Hub) OnLastDetach(topic string, fn func()) (cancel func()) {
	h.mu.Lock()
	id := h.nextHook
	h.nextHook++
	if h.onDetach[topic] == nil {
		h.onDetach[topic] = make(map[int]func())
	}
	h.onDetach[topic][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.onDetach[topic], id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range conn.Topics {
		if h.connections[topic] == nil {
			h.connections[topic] = make(map[*Connection]struct{})
		}
		h.connections[topic][conn] = struct{}{}
	}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	var callbacks []func()
	for _, topic := range conn.Topics {
		set := h.connections[topic]
		if set == nil {
			continue
		}
		if _, ok := set[conn]; !ok {
			continue
		}
		delete(set, conn)
		if len(set) == 0 {
			delete(h.connections, topic)
			for _, fn := range h.onDetach[topic] {
				callbacks = append(callbacks, fn)
			}
		}
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Count reports how many views are attached to topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[topic])
}

func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	set := h.connections[topic]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// Publish wraps body in a Message typed after topic and broadcasts it.
func (h *Hub) Publish(topic string, body any) error {
	data, err := Encode(topic, body)
	if err != nil {
		return err
	}
	h.Broadcast(topic, data)
	return nil
}

func Encode(topic string, body any) ([]byte, error) {
	return json.Marshal(Message{Type: topic, Body: body})
}
