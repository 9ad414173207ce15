package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/membership"
	"taskflow.dev/internal/notify"
	"taskflow.dev/internal/realtime"
	"taskflow.dev/internal/tasks"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// accounts is an in-memory auth.UserStore and auth.OrganizationStore.
type accounts struct {
	mu    sync.Mutex
	users map[string]*account.User
	orgs  map[string]*account.Organization
}

func newAccounts() *accounts {
	return &accounts{users: map[string]*account.User{}, orgs: map[string]*account.Organization{}}
}

func (m *accounts) Find(_ context.Context, id string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *accounts) FindByEmail(_ context.Context, email string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == account.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *accounts) Register(_ context.Context, u *account.User, org *account.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return account.ErrEmailTaken
		}
	}
	u.ID, org.ID = ids.New(), ids.New()
	u.Role = account.RoleAdmin
	u.OrganizationID = org.ID
	org.CreatedBy = u.ID
	cp, ocp := *u, *org
	m.users[u.ID] = &cp
	m.orgs[org.ID] = &ocp
	return nil
}

type orgLookup struct{ m *accounts }

func (o orgLookup) Find(_ context.Context, id string) (*account.Organization, error) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	org, ok := o.m.orgs[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return org, nil
}

// stubMembership answers with per-test functions; unset methods return zero values.
type stubMembership struct {
	MembershipService
	createInviteFn func(context.Context, auth.Identity, string) (*membership.Invite, error)
	bulkInviteFn   func(context.Context, auth.Identity, [][]string) (*membership.BulkResult, error)
	acceptFn       func(context.Context, string, membership.AcceptInput) (*auth.Session, bool, error)
	removeFn       func(context.Context, auth.Identity, string) error
}

func (s *stubMembership) CreateInvite(ctx context.Context, actor auth.Identity, email string) (*membership.Invite, error) {
	return s.createInviteFn(ctx, actor, email)
}

func (s *stubMembership) BulkInvite(ctx context.Context, actor auth.Identity, rows [][]string) (*membership.BulkResult, error) {
	return s.bulkInviteFn(ctx, actor, rows)
}

func (s *stubMembership) AcceptInvite(ctx context.Context, token string, in membership.AcceptInput) (*auth.Session, bool, error) {
	return s.acceptFn(ctx, token, in)
}

func (s *stubMembership) RemoveMember(ctx context.Context, actor auth.Identity, id string) error {
	return s.removeFn(ctx, actor, id)
}

func (s *stubMembership) ListInvites(context.Context, auth.Identity) ([]*membership.Invite, error) {
	return nil, nil
}

type stubTasks struct {
	TaskService
	createFn func(context.Context, auth.Identity, tasks.CreateInput) (*tasks.Task, error)
	getFn    func(context.Context, auth.Identity, string) (*tasks.Task, error)
	listFn   func(context.Context, auth.Identity, tasks.Filter) (*tasks.Page, error)
	importFn func(context.Context, auth.Identity, [][]string) (*tasks.ImportResult, error)
	statsFn  func(context.Context, auth.Identity) (tasks.Stats, error)
}

func (s *stubTasks) Create(ctx context.Context, actor auth.Identity, in tasks.CreateInput) (*tasks.Task, error) {
	return s.createFn(ctx, actor, in)
}

func (s *stubTasks) Get(ctx context.Context, actor auth.Identity, id string) (*tasks.Task, error) {
	return s.getFn(ctx, actor, id)
}

func (s *stubTasks) List(ctx context.Context, actor auth.Identity, f tasks.Filter) (*tasks.Page, error) {
	return s.listFn(ctx, actor, f)
}

func (s *stubTasks) Import(ctx context.Context, actor auth.Identity, rows [][]string) (*tasks.ImportResult, error) {
	return s.importFn(ctx, actor, rows)
}

func (s *stubTasks) Stats(ctx context.Context, actor auth.Identity) (tasks.Stats, error) {
	return s.statsFn(ctx, actor)
}

type stubNotifications struct {
	NotificationService
	unread int
	caller auth.Identity
}

func (s *stubNotifications) UnreadCount(_ context.Context, caller auth.Identity) (int, error) {
	s.caller = caller
	return s.unread, nil
}

func (s *stubNotifications) List(_ context.Context, caller auth.Identity, _ bool) ([]*notify.Notification, error) {
	s.caller = caller
	return nil, nil
}

func (s *stubNotifications) MarkRead(context.Context, auth.Identity, string) (*notify.Notification, error) {
	return nil, notify.ErrNotFound
}

type testAPI struct {
	t       *testing.T
	srv     *httptest.Server
	api     *API
	auth    *auth.Service
	users   *accounts
	hub     *realtime.Hub
	members *stubMembership
	tasks   *stubTasks
	notes   *stubNotifications
}

func newTestAPI(t *testing.T, mutate ...func(*Options)) *testAPI {
	t.Helper()

	users := newAccounts()
	authSvc, err := auth.NewService(users, orgLookup{users}, auth.WithTokenSecret(testSecret))
	require.NoError(t, err)

	ta := &testAPI{
		t:       t,
		auth:    authSvc,
		users:   users,
		hub:     realtime.NewHub(),
		members: &stubMembership{},
		tasks:   &stubTasks{},
		notes:   &stubNotifications{},
	}
	opts := Options{
		Auth:          authSvc,
		Membership:    ta.members,
		Tasks:         ta.tasks,
		Notifications: ta.notes,
		Events:        ta.hub,
		Log:           zap.NewNop(),
		Version:       "test",
		CORSOrigins:   []string{"http://localhost:4200"},
		RateBurst:     1000,
		RatePerSecond: 1000,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	ta.api = New(opts)
	ta.srv = httptest.NewServer(ta.api.Handler())
	t.Cleanup(ta.srv.Close)
	return ta
}

func (c *testAPI) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	return resp
}

func (c *testAPI) upload(path, filename, content, token string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(c.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	return resp
}

// register signs up an admin of a new organization and returns the session token.
func (c *testAPI) register(email, orgName string) (string, auth.Identity) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"first_name":       "Ada",
		"last_name":        "Lovelace",
		"email":            email,
		"password":         "secret123",
		"organizationName": orgName,
	}, "")
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]any](c.t, resp)
	token := body["token"].(string)
	id, err := c.auth.ParseToken(token)
	require.NoError(c.t, err)
	return token, id
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(r.Body).Decode(&v))
	return v
}

func query(path string, v url.Values) string {
	return path + "?" + v.Encode()
}
