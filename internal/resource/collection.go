// Package resource holds the client-side state of a fetched collection: the
// last listed items, the item in focus and the status of the last request.
package resource

import (
	"context"
	"log/slog"
	"sync"

	"eventfinder/internal/gateway"
	"eventfinder/internal/logging"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type State[T any] struct {
	Items    []T              `json:"items"`
	Current  *T               `json:"current"`
	Status   Status           `json:"status"`
	Error    *gateway.Failure `json:"error,omitempty"`
	Revision uint64           `json:"revision"`
}

func (s State[T]) clone() State[T] {
	out := s
	if s.Items != nil {
		out.Items = make([]T, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	return out
}

// Backend is the resource service a collection fetches through. F is the
// list filter, P the creation payload.
type Backend[T, F, P any] interface {
	List(ctx context.Context, filters F) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, in P) (T, error)
}

type op int

const (
	opList op = iota
	opGet
	opCreate
)

// Collection serializes state transitions for one resource kind. Reset
// invalidates every in-flight request; a newer request of the same kind
// invalidates an older one.
type Collection[T, F, P any] struct {
	backend Backend[T, F, P]
	name    string
	log     *slog.Logger

	mu      sync.Mutex
	state   State[T]
	epoch   uint64
	seq     [3]uint64
	subs    map[int]func(State[T])
	nextSub int
}

func New[T, F, P any](name string, backend Backend[T, F, P], logger *slog.Logger) *Collection[T, F, P] {
	return &Collection[T, F, P]{
		backend: backend,
		name:    name,
		log:     logging.OrDiscard(logger),
		state:   State[T]{Status: StatusIdle},
		subs:    make(map[int]func(State[T])),
	}
}

func (c *Collection[T, F, P]) Name() string { return c.name }

func (c *Collection[T, F, P]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Collection[T, F, P]) Subscribe(fn func(State[T])) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// List fetches items matching filters and replaces Items wholesale. Stale
// items stay visible while the request is in flight.
func (c *Collection[T, F, P]) List(ctx context.Context, filters F) ([]T, error) {
	ticket := c.start(opList, nil)
	items, err := c.backend.List(ctx, filters)
	if err != nil {
		return nil, c.fail(ticket, err)
	}
	if items == nil {
		items = []T{}
	}
	if !c.finish(ticket, func(s *State[T]) {
		s.Items = make([]T, len(items))
		copy(s.Items, items)
	}) {
		return nil, ErrDiscarded
	}
	return items, nil
}

// Get clears Current immediately and sets it to the fetched item.
func (c *Collection[T, F, P]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	ticket := c.start(opGet, func(s *State[T]) { s.Current = nil })
	item, err := c.backend.Get(ctx, id)
	if err != nil {
		return zero, c.fail(ticket, err)
	}
	if !c.finish(ticket, func(s *State[T]) { s.Current = &item }) {
		return zero, ErrDiscarded
	}
	return item, nil
}

// Create sets Current to the created item. Items is left as is.
func (c *Collection[T, F, P]) Create(ctx context.Context, in P) (T, error) {
	var zero T
	ticket := c.start(opCreate, nil)
	item, err := c.backend.Create(ctx, in)
	if err != nil {
		return zero, c.fail(ticket, err)
	}
	if !c.finish(ticket, func(s *State[T]) { s.Current = &item }) {
		return zero, ErrDiscarded
	}
	return item, nil
}

// Reset clears all state and discards the result of any request still in
// flight.
func (c *Collection[T, F, P]) Reset() {
	c.mu.Lock()
	c.epoch++
	rev := c.state.Revision
	c.state = State[T]{Status: StatusIdle, Revision: rev + 1}
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Debug("collection reset", "collection", c.name)
	notify(subs, snap)
}

// ResetStatus returns the status to idle and drops the error, keeping
// Items and Current.
func (c *Collection[T, F, P]) ResetStatus() {
	c.mu.Lock()
	c.state.Status = StatusIdle
	c.state.Error = nil
	c.state.Revision++
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, snap)
}

type ticket struct {
	kind  op
	epoch uint64
	seq   uint64
}

func (c *Collection[T, F, P]) start(kind op, fn func(*State[T])) ticket {
	c.mu.Lock()
	c.seq[kind]++
	t := ticket{kind: kind, epoch: c.epoch, seq: c.seq[kind]}
	c.state.Status = StatusLoading
	c.state.Error = nil
	if fn != nil {
		fn(&c.state)
	}
	c.state.Revision++
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()

	notify(subs, snap)
	return t
}

func (c *Collection[T, F, P]) finish(t ticket, fn func(*State[T])) bool {
	return c.apply(t, func(s *State[T]) {
		fn(s)
		s.Status = StatusSuccess
		s.Error = nil
	})
}

func (c *Collection[T, F, P]) fail(t ticket, err error) error {
	f := gateway.AsFailure(err)
	if !c.apply(t, func(s *State[T]) {
		s.Status = StatusError
		s.Error = f
	}) {
		return ErrDiscarded
	}
	c.log.Debug("collection request failed", "collection", c.name, "err", f)
	return f
}

func (c *Collection[T, F, P]) apply(t ticket, fn func(*State[T])) bool {
	c.mu.Lock()
	if t.epoch != c.epoch || t.seq != c.seq[t.kind] {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	c.state.Revision++
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()

	notify(subs, snap)
	return true
}

func (c *Collection[T, F, P]) snapshotLocked() (State[T], []func(State[T])) {
	subs := make([]func(State[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return c.state.clone(), subs
}

func notify[T any](subs []func(State[T]), snap State[T]) {
	for _, fn := range subs {
		fn(snap)
	}
}
