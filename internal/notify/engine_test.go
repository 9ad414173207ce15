package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/mailer"
	"taskflow.dev/internal/realtime"
	"taskflow.dev/internal/tasks"
)

type memStore struct {
	mu      sync.Mutex
	items   []*Notification
	failing bool
}

func (s *memStore) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("db down")
	}
	n.CreatedAt = time.Now().Add(time.Duration(len(s.items)) * time.Millisecond)
	cp := *n
	s.items = append(s.items, &cp)
	return nil
}

func (s *memStore) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Notification{}
	for _, n := range s.items {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, n := range s.items {
		if n.UserID == userID && !n.Read {
			c++
		}
	}
	return c, nil
}

func (s *memStore) MarkRead(_ context.Context, userID, id string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c int64
	for _, n := range s.items {
		if n.UserID == userID && !n.Read {
			n.Read = true
			c++
		}
	}
	return c, nil
}

func (s *memStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id && n.UserID == userID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) Clear(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var c int64
	for _, n := range s.items {
		if n.UserID == userID {
			c++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	return c, nil
}

func (s *memStore) forUser(id string) []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, n := range s.items {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out
}

type memUsers map[string]*account.User

func (m memUsers) Find(_ context.Context, id string) (*account.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, account.ErrNotFound
}

type pushed struct {
	scope realtime.Scope
	key   string
	evt   realtime.Event
}

type recordingHub struct {
	mu     sync.Mutex
	events []pushed
}

func (h *recordingHub) ToUser(id string, evt realtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, pushed{realtime.ScopeUser, id, evt})
}

func (h *recordingHub) ToOrg(id string, evt realtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, pushed{realtime.ScopeOrg, id, evt})
}

func (h *recordingHub) scoped(scope realtime.Scope) []pushed {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []pushed
	for _, p := range h.events {
		if p.scope == scope {
			out = append(out, p)
		}
	}
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []mailer.Message
	err  error
}

func (q *recordingQueue) Enqueue(msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

type engineFixture struct {
	engine *Engine
	store  *memStore
	hub    *recordingHub
	mail   *recordingQueue
	admin  auth.Identity
	member auth.Identity
}

func newEngineFixture() *engineFixture {
	users := memUsers{
		"admin":  {ID: "admin", FirstName: "Ada", LastName: "Lovelace", Email: "ada@acme.io", OrganizationID: "acme", Role: account.RoleAdmin},
		"member": {ID: "member", FirstName: "Bob", LastName: "Builder", Email: "bob@acme.io", OrganizationID: "acme", Role: account.RoleMember},
		"carol":  {ID: "carol", FirstName: "Carol", LastName: "Danvers", Email: "carol@acme.io", OrganizationID: "acme", Role: account.RoleMember},
	}
	f := &engineFixture{store: &memStore{}, hub: &recordingHub{}, mail: &recordingQueue{}}
	f.engine = NewEngine(f.store, users, f.hub, WithMail(f.mail, mailer.Branding{AppName: "Taskflow", FrontendURL: "http://app"}))
	f.admin = auth.IdentityOf(users["admin"])
	f.member = auth.IdentityOf(users["member"])
	return f
}

func TestEngineStatusChangeExample(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	before := task("admin", tasks.StatusPending, "admin")
	after := task("admin", tasks.StatusCompleted, "admin")

	f.engine.TaskUpdated(ctx, f.member, before, after)

	got := f.store.forUser("admin")
	require.Len(t, got, 1)
	assert.Equal(t, TypeTaskUpdated, got[0].Type)
	assert.Equal(t, "acme", got[0].OrganizationID)
	require.NotNil(t, got[0].TaskID)
	assert.Equal(t, "t1", *got[0].TaskID)
	require.NotNil(t, got[0].ActorID)
	assert.Equal(t, "member", *got[0].ActorID)
	assert.Empty(t, f.store.forUser("member"))

	users := f.hub.scoped(realtime.ScopeUser)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].key)
	assert.Equal(t, realtime.EventNotification, users[0].evt.Name)
	var payload Pushed
	require.NoError(t, json.Unmarshal(users[0].evt.Data, &payload))
	assert.Equal(t, TypeTaskUpdated, payload.Type)
	require.NotNil(t, payload.Notification.Actor)
	assert.Equal(t, "Bob Builder", payload.Notification.Actor.FullName)

	orgs := f.hub.scoped(realtime.ScopeOrg)
	require.Len(t, orgs, 1)
	assert.Equal(t, "acme", orgs[0].key)
	var update TaskUpdate
	require.NoError(t, json.Unmarshal(orgs[0].evt.Data, &update))
	assert.Equal(t, ActionUpdated, update.Action)
	require.NotNil(t, update.Task)
	assert.Equal(t, tasks.StatusCompleted, update.Task.Status)

	require.Len(t, f.mail.msgs, 1)
	assert.Equal(t, "ada@acme.io", f.mail.msgs[0].To)
	assert.Contains(t, f.mail.msgs[0].HTML, "status changed to Completed")
}

func TestEngineDeleteBroadcastsTaskID(t *testing.T) {
	f := newEngineFixture()
	f.engine.TaskDeleted(context.Background(), f.admin, task("admin", tasks.StatusPending, "member", "carol"))

	assert.Len(t, f.store.forUser("member"), 1)
	assert.Len(t, f.store.forUser("carol"), 1)
	assert.Nil(t, f.store.forUser("carol")[0].TaskID, "deleted task is not referenced")

	orgs := f.hub.scoped(realtime.ScopeOrg)
	require.Len(t, orgs, 1)
	assert.JSONEq(t, `{"action":"deleted","taskId":"t1"}`, string(orgs[0].evt.Data))
}

func TestEngineCreateWithoutRecipientsStillBroadcasts(t *testing.T) {
	f := newEngineFixture()
	f.engine.TaskCreated(context.Background(), f.admin, task("admin", tasks.StatusPending, "admin"))

	assert.Empty(t, f.store.items)
	assert.Empty(t, f.hub.scoped(realtime.ScopeUser))
	assert.Len(t, f.hub.scoped(realtime.ScopeOrg), 1)
	assert.Empty(t, f.mail.msgs)
}

func TestEngineDeliveryFailuresAreContained(t *testing.T) {
	f := newEngineFixture()
	f.mail.err = mailer.ErrOutboxClosed
	f.engine.TaskCreated(context.Background(), f.admin, task("admin", tasks.StatusPending, "member"))
	assert.Len(t, f.store.forUser("member"), 1)
	assert.Len(t, f.hub.scoped(realtime.ScopeUser), 1)

	f.store.failing = true
	assert.NotPanics(t, func() {
		f.engine.TaskCreated(context.Background(), f.admin, task("admin", tasks.StatusPending, "carol"))
	})
	assert.Empty(t, f.store.forUser("carol"))
	assert.Len(t, f.hub.scoped(realtime.ScopeUser), 1, "nothing pushed for unpersisted notification")
	assert.Len(t, f.hub.scoped(realtime.ScopeOrg), 2)
}

func TestInviteReceived(t *testing.T) {
	f := newEngineFixture()
	require.NoError(t, f.engine.InviteReceived(context.Background(), "carol", "globex", "Globex", "admin"))

	got := f.store.forUser("carol")
	require.Len(t, got, 1)
	assert.Equal(t, TypeInviteReceived, got[0].Type)
	assert.Contains(t, got[0].Message, "Globex")
}

func TestReaderService(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.engine.TaskCreated(ctx, f.admin, task("admin", tasks.StatusPending, "member"))
	}
	f.engine.TaskCreated(ctx, f.admin, task("admin", tasks.StatusPending, "carol"))
	svc := NewService(f.store)

	list, err := svc.List(ctx, f.member, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].CreatedAt.After(list[2].CreatedAt), "newest first")

	n, err := svc.MarkRead(ctx, f.member, list[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Read)
	count, err := svc.UnreadCount(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := svc.List(ctx, f.member, true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	carol := auth.Identity{UserID: "carol", OrgID: "acme", Role: account.RoleMember}
	_, err = svc.MarkRead(ctx, carol, list[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, carol, list[1].ID), ErrNotFound)

	marked, err := svc.MarkAllRead(ctx, f.member)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	require.NoError(t, svc.Delete(ctx, f.member, list[1].ID))
	cleared, err := svc.Clear(ctx, f.member)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cleared)
	assert.Len(t, f.store.forUser("carol"), 1)
}
