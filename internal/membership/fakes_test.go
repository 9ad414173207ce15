package membership

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/mailer"
)

type world struct {
	mu      sync.Mutex
	users   map[string]*account.User
	orgs    map[string]*account.Organization
	invites map[string]*Invite
}

func newWorld() *world {
	return &world{users: map[string]*account.User{}, orgs: map[string]*account.Organization{}, invites: map[string]*Invite{}}
}

func (w *world) addUser(u *account.User) *account.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users[u.ID] = u
	return u
}

func (w *world) userCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.users)
}

// account.UserStore

type userStore struct{ *world }

func (s userStore) Find(_ context.Context, id string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, account.ErrNotFound
}

func (s userStore) FindByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail(email)
}

func (w *world) byEmail(email string) (*account.User, error) {
	for _, u := range w.users {
		if account.NormalizeEmail(u.Email) == account.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s userStore) FindInOrg(_ context.Context, orgID, id string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok && u.OrganizationID == orgID {
		cp := *u
		return &cp, nil
	}
	return nil, account.ErrNotFound
}

func (s userStore) ListByOrg(_ context.Context, orgID string) ([]*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*account.User
	for _, u := range s.users {
		if u.OrganizationID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s userStore) CountInOrg(ctx context.Context, orgID string, userIDs []string) (int, error) {
	n := 0
	for _, id := range userIDs {
		if _, err := s.FindInOrg(ctx, orgID, id); err == nil {
			n++
		}
	}
	return n, nil
}

func (s userStore) Register(context.Context, *account.User, *account.Organization) error { return nil }

func (s userStore) Detach(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.OrganizationID != orgID {
		return account.ErrNotFound
	}
	u.OrganizationID = ""
	u.Role = account.RoleMember
	return nil
}

func (s userStore) SetRole(_ context.Context, orgID, userID string, role account.Role) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.OrganizationID != orgID {
		return nil, account.ErrNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

// account.OrganizationStore

type orgStore struct{ *world }

func (s orgStore) Find(_ context.Context, id string) (*account.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, account.ErrNotFound
}

func (s orgStore) Rename(_ context.Context, id, name string) (*account.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	o.Name = name
	cp := *o
	return &cp, nil
}

// Store

type inviteStore struct{ *world }

func (s inviteStore) CreateInvite(_ context.Context, inv *Invite, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.invites {
		if other.OrganizationID != inv.OrganizationID || other.Email != inv.Email || other.Accepted {
			continue
		}
		if !now.Before(other.ExpiresAt) {
			delete(s.invites, id)
			continue
		}
		return ErrAlreadyInvited
	}
	inv.CreatedAt, inv.UpdatedAt = now, now
	cp := *inv
	s.invites[inv.ID] = &cp
	return nil
}

func (s inviteStore) ListInvites(_ context.Context, orgID string) ([]*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Invite{}
	for _, inv := range s.invites {
		if inv.OrganizationID == orgID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s inviteStore) FindInvite(_ context.Context, orgID, id string) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invites[id]; ok && inv.OrganizationID == orgID {
		cp := *inv
		return &cp, nil
	}
	return nil, ErrInviteNotFound
}

func (s inviteStore) FindInviteByToken(_ context.Context, token string) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInviteNotFound
}

func (s inviteStore) ExtendInvite(_ context.Context, orgID, id string, expiresAt time.Time) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok || inv.OrganizationID != orgID {
		return nil, ErrInviteNotFound
	}
	if inv.Accepted {
		return nil, ErrInviteAccepted
	}
	inv.ExpiresAt = expiresAt
	cp := *inv
	return &cp, nil
}

func (s inviteStore) DeleteInvite(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invites[id]; ok && inv.OrganizationID == orgID {
		delete(s.invites, id)
		return nil
	}
	return ErrInviteNotFound
}

func (s inviteStore) AcceptInvite(_ context.Context, token string, now time.Time, newUser *account.User) (*account.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inv *Invite
	for _, i := range s.invites {
		if i.Token == token {
			inv = i
		}
	}
	if inv == nil {
		return nil, false, ErrInviteNotFound
	}
	if err := inv.usable(now); err != nil {
		return nil, false, err
	}
	existing, err := s.byEmail(inv.Email)
	joined := false
	switch {
	case err != nil:
		newUser.ID = ids.New()
		newUser.Email = inv.Email
		newUser.OrganizationID = inv.OrganizationID
		newUser.Role = account.RoleMember
		newUser.InvitedBy = inv.InvitedBy
		s.users[newUser.ID] = newUser
		existing = newUser
	case existing.OrganizationID == inv.OrganizationID:
		return nil, false, ErrAlreadyMember
	case existing.HasOrganization():
		return nil, false, ErrEmailInOtherOrg
	default:
		u := s.users[existing.ID]
		u.OrganizationID = inv.OrganizationID
		u.Role = account.RoleMember
		u.InvitedBy = inv.InvitedBy
		existing, joined = u, true
	}
	inv.Accepted = true
	cp := *existing
	return &cp, joined, nil
}

type fakeSessions struct{}

func (fakeSessions) NewSession(u *account.User, org *account.Organization) (*auth.Session, error) {
	return &auth.Session{User: u, Organization: org, Token: "token-" + u.ID}, nil
}

type inviteNote struct{ userID, orgID, orgName string }

type recordingNotifier struct{ got []inviteNote }

func (r *recordingNotifier) InviteReceived(_ context.Context, userID, orgID, orgName, _ string) error {
	r.got = append(r.got, inviteNote{userID, orgID, orgName})
	return nil
}

type recordingQueue struct{ msgs []mailer.Message }

func (q *recordingQueue) Enqueue(msg mailer.Message) error {
	q.msgs = append(q.msgs, msg)
	return nil
}
