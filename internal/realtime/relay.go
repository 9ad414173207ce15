package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"taskflow.dev/internal/obs"
)

type envelope struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Relay bridges hubs running in different processes over NATS. Events published on this
// replica go out on <prefix>.user.<id> and <prefix>.org.<id>; events from other replicas
// are delivered to local subscribers only.
type Relay struct {
	nc     *nats.Conn
	hub    *Hub
	prefix string
	origin string

	mu   sync.Mutex
	subs []*nats.Subscription
	msgs chan *nats.Msg
	done chan struct{}
}

var _ Forwarder = (*Relay)(nil)

// NewRelay creates a relay for hub. Call Start to begin exchanging events.
func NewRelay(nc *nats.Conn, hub *Hub, prefix string) (*Relay, error) {
	if nc == nil || hub == nil {
		return nil, errors.New("realtime: relay needs a nats connection and a hub")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "taskflow"
	}
	return &Relay{
		nc:     nc,
		hub:    hub,
		prefix: prefix,
		origin: uuid.NewString(),
		msgs:   make(chan *nats.Msg, 256),
		done:   make(chan struct{}),
	}, nil
}

// Start subscribes to both scopes and installs the relay as the hub's forwarder.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, scope := range []Scope{ScopeUser, ScopeOrg} {
		sub, err := r.nc.ChanSubscribe(r.prefix+"."+string(scope)+".*", r.msgs)
		if err != nil {
			r.unsubscribeLocked()
			return err
		}
		r.subs = append(r.subs, sub)
	}
	go r.loop()
	r.hub.SetForwarder(r)
	return nil
}

// Close detaches the relay from the hub and drops its subscriptions.
func (r *Relay) Close() {
	r.hub.SetForwarder(nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Forward publishes evt for other replicas. Failures are logged; local delivery already happened.
func (r *Relay) Forward(scope Scope, key string, evt Event) {
	data, err := json.Marshal(envelope{Origin: r.origin, Event: evt.Name, Data: evt.Data})
	if err != nil {
		obs.Logger().Warn("realtime relay encode failed", zap.Error(err))
		return
	}
	if err := r.nc.Publish(r.subject(scope, key), data); err != nil {
		obs.Logger().Warn("realtime relay publish failed", zap.String("scope", string(scope)), zap.Error(err))
	}
}

func (r *Relay) subject(scope Scope, key string) string {
	return r.prefix + "." + string(scope) + "." + key
}

func (r *Relay) loop() {
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.msgs:
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *nats.Msg) {
	rest, ok := strings.CutPrefix(msg.Subject, r.prefix+".")
	if !ok {
		return
	}
	scope, key, ok := strings.Cut(rest, ".")
	if !ok || key == "" {
		return
	}
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		obs.Logger().Warn("realtime relay decode failed", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.hub.Deliver(Scope(scope), key, Event{Name: env.Event, Data: env.Data})
}

func (r *Relay) unsubscribeLocked() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
}
