// Package realtime fans events out to connected clients. Every subscriber listens on two
// channels: its own user id and its organization id.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"taskflow.dev/internal/obs"
)

const (
	EventNotification = "notification"
	EventTaskUpdate   = "task_update"
)

const defaultBuffer = 32

// Event is one named message with a pre-encoded JSON payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// NewEvent encodes payload under the given event name.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encode %s: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// Scope selects which of a subscriber's two channels an event targets.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeOrg  Scope = "org"
)

// Publisher is what producers of events depend on.
type Publisher interface {
	ToUser(userID string, evt Event)
	ToOrg(orgID string, evt Event)
}

// Forwarder receives every locally published event so it can reach other replicas.
type Forwarder interface {
	Forward(scope Scope, key string, evt Event)
}

type subscriber struct {
	userID string
	orgID  string
	ch     chan Event
}

// Hub is the in-process fan-out. It is created once at startup and injected wherever
// events are published.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int]*subscriber
	next      int
	buffer    int
	forwarder Forwarder
}

var _ Publisher = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub initialises an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subs: make(map[int]*subscriber), buffer: defaultBuffer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetForwarder installs f; nil disables forwarding.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Subscribe registers a client and returns a channel which will receive its events.
// The channel is closed when ctx ends. orgID may be empty for users without an organization.
func (h *Hub) Subscribe(ctx context.Context, userID, orgID string) <-chan Event {
	sub := &subscriber{userID: userID, orgID: orgID, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()
	obs.RealtimeSubscribers.Inc()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
		obs.RealtimeSubscribers.Dec()
	}()

	return sub.ch
}

// Subscribers returns the number of connected clients on this replica.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ToUser delivers evt to every connection of userID, here and on other replicas.
func (h *Hub) ToUser(userID string, evt Event) {
	h.Deliver(ScopeUser, userID, evt)
	h.forward(ScopeUser, userID, evt)
}

// ToOrg delivers evt to every connection in orgID, here and on other replicas.
func (h *Hub) ToOrg(orgID string, evt Event) {
	h.Deliver(ScopeOrg, orgID, evt)
	h.forward(ScopeOrg, orgID, evt)
}

// Deliver hands evt to matching local subscribers only. A subscriber whose buffer is full
// misses the event rather than blocking the publisher.
func (h *Hub) Deliver(scope Scope, key string, evt Event) {
	if key == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.matches(scope, key) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			obs.RealtimeDropped.Inc()
		}
	}
}

func (h *Hub) forward(scope Scope, key string, evt Event) {
	if key == "" {
		return
	}
	h.mu.RLock()
	f := h.forwarder
	h.mu.RUnlock()
	if f != nil {
		f.Forward(scope, key, evt)
	}
}

func (s *subscriber) matches(scope Scope, key string) bool {
	switch scope {
	case ScopeUser:
		return s.userID == key
	case ScopeOrg:
		return s.orgID != "" && s.orgID == key
	}
	return false
}
