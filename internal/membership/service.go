package membership

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
	"taskflow.dev/internal/audit"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/importer"
	"taskflow.dev/internal/mailer"
	"taskflow.dev/internal/obs"
)

var (
	errNoOrganization       = apperr.NotFound("No organization found")
	errNoOrganizationInvite = apperr.Invalid("You must belong to an organization to invite members")
	errNoOrganizationAdmin  = apperr.Invalid("No organization found")
	errInviteFailed         = errors.New("failed to create invite")
)

const maxOrgName = 100

// Sessions signs in a user who just joined through an invite.
type Sessions interface {
	NewSession(u *account.User, org *account.Organization) (*auth.Session, error)
}

// InviteNotifier tells an existing user without an organization about an invite.
type InviteNotifier interface {
	InviteReceived(ctx context.Context, userID, orgID, orgName, inviterID string) error
}

// Service implements organization, member and invite operations.
type Service struct {
	users    account.UserStore
	orgs     account.OrganizationStore
	invites  Store
	sessions Sessions
	notifier InviteNotifier
	mail     mailer.Queue
	branding mailer.Branding
	log      *zap.Logger
	now      func() time.Time
	ttl      time.Duration
}

type Option func(*Service)

// WithMail queues invite emails on q.
func WithMail(q mailer.Queue, b mailer.Branding) Option {
	return func(s *Service) {
		s.mail = q
		s.branding = b
	}
}

func WithNotifier(n InviteNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInviteTTL overrides InviteTTL for new and resent invites.
func WithInviteTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(users account.UserStore, orgs account.OrganizationStore, invites Store, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		users:    users,
		orgs:     orgs,
		invites:  invites,
		sessions: sessions,
		log:      zap.NewNop(),
		now:      time.Now,
		ttl:      InviteTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize maps a missing organization to the caller-specific error before applying policy.
func authorize(actor auth.Identity, action auth.Action, noOrg error) error {
	if !actor.HasOrganization() {
		return noOrg
	}
	return auth.Authorize(actor, action, auth.Resource{})
}

// Organizations and members ----------------------------------------------

func (s *Service) GetOrganization(ctx context.Context, actor auth.Identity) (*account.Organization, error) {
	if err := authorize(actor, auth.ActionOrganizationRead, errNoOrganization); err != nil {
		return nil, err
	}
	org, err := s.orgs.Find(ctx, actor.OrgID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, apperr.NotFound("Organization not found")
	}
	return org, err
}

func (s *Service) UpdateOrganization(ctx context.Context, actor auth.Identity, name string) (*account.Organization, error) {
	if err := authorize(actor, auth.ActionOrganizationUpdate, errNoOrganization); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxOrgName {
		return nil, ErrNameTooLong
	}
	org, err := s.orgs.Rename(ctx, actor.OrgID, name)
	if errors.Is(err, account.ErrNotFound) {
		return nil, apperr.NotFound("Organization not found")
	}
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, "membership.organization.renamed", zap.String("name", name))
	return org, nil
}

func (s *Service) ListMembers(ctx context.Context, actor auth.Identity) ([]*account.User, error) {
	if err := authorize(actor, auth.ActionMembersRead, errNoOrganization); err != nil {
		return nil, err
	}
	return s.users.ListByOrg(ctx, actor.OrgID)
}

// RemoveMember detaches a non-admin member. The user account survives without an organization.
func (s *Service) RemoveMember(ctx context.Context, actor auth.Identity, memberID string) error {
	if err := authorize(actor, auth.ActionMemberRemove, errNoOrganization); err != nil {
		return err
	}
	member, err := s.member(ctx, actor.OrgID, memberID)
	if err != nil {
		return err
	}
	if member.IsAdmin() {
		return ErrCannotRemoveAdmin
	}
	if err := s.users.Detach(ctx, actor.OrgID, member.ID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	audit.Record(ctx, "membership.member.removed", zap.String("member_id", member.ID))
	return nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, actor auth.Identity, memberID, role string) (*account.User, error) {
	if err := authorize(actor, auth.ActionMemberRole, errNoOrganization); err != nil {
		return nil, err
	}
	r, err := account.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if _, err := s.member(ctx, actor.OrgID, memberID); err != nil {
		return nil, err
	}
	u, err := s.users.SetRole(ctx, actor.OrgID, memberID, r)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, "membership.member.role_changed", zap.String("member_id", memberID), zap.String("role", string(r)))
	return u, nil
}

func (s *Service) member(ctx context.Context, orgID, id string) (*account.User, error) {
	u, err := s.users.FindInOrg(ctx, orgID, id)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrMemberNotFound
	}
	return u, err
}

// Invites -------------------------------------------------------------------

func (s *Service) CreateInvite(ctx context.Context, actor auth.Identity, email string) (*Invite, error) {
	if err := authorize(actor, auth.ActionInviteCreate, errNoOrganizationInvite); err != nil {
		return nil, err
	}
	return s.createInvite(ctx, actor, email)
}

func (s *Service) createInvite(ctx context.Context, actor auth.Identity, email string) (*Invite, error) {
	email = account.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > account.MaxEmailLength || !importer.ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	case existing.OrganizationID == actor.OrgID:
		return nil, ErrAlreadyMember
	}

	token, err := ids.Token(32)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	inv := &Invite{
		ID:             ids.New(),
		Email:          email,
		OrganizationID: actor.OrgID,
		Token:          token,
		InvitedBy:      actor.UserID,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.invites.CreateInvite(ctx, inv, now); err != nil {
		return nil, err
	}
	inv.Status = inv.StatusAt(now)

	org, inviter := s.inviteContext(ctx, actor)
	if org != nil {
		inv.Organization = &OrganizationRef{ID: org.ID, Name: org.Name}
	}
	if inviter != nil {
		sum := inviter.Summary()
		inv.Inviter = &sum
	}
	s.sendInvite(inv, org, inviter)
	if existing != nil && !existing.HasOrganization() && s.notifier != nil && org != nil {
		if err := s.notifier.InviteReceived(ctx, existing.ID, org.ID, org.Name, actor.UserID); err != nil {
			s.log.Warn("invite notification failed", zap.String("user_id", existing.ID), zap.Error(err))
		}
	}
	audit.Record(ctx, "membership.invite.created", zap.String("invite_id", inv.ID), zap.String("email", inv.Email))
	return inv, nil
}

func (s *Service) ListInvites(ctx context.Context, actor auth.Identity) ([]*Invite, error) {
	if err := authorize(actor, auth.ActionInviteRead, errNoOrganizationAdmin); err != nil {
		return nil, err
	}
	list, err := s.invites.ListInvites(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, inv := range list {
		inv.Status = inv.StatusAt(now)
	}
	return list, nil
}

// ResendInvite pushes the expiry a full TTL from now and emails the invite again.
func (s *Service) ResendInvite(ctx context.Context, actor auth.Identity, id string) (*Invite, error) {
	if err := authorize(actor, auth.ActionInviteResend, errNoOrganizationAdmin); err != nil {
		return nil, err
	}
	inv, err := s.invites.FindInvite(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if inv.Accepted {
		return nil, ErrInviteAccepted
	}
	now := s.now().UTC()
	inv, err = s.invites.ExtendInvite(ctx, actor.OrgID, id, now.Add(s.ttl))
	if err != nil {
		return nil, err
	}
	inv.Status = inv.StatusAt(now)
	org, inviter := s.inviteContext(ctx, actor)
	s.sendInvite(inv, org, inviter)
	audit.Record(ctx, "membership.invite.resent", zap.String("invite_id", inv.ID))
	return inv, nil
}

func (s *Service) CancelInvite(ctx context.Context, actor auth.Identity, id string) error {
	if err := authorize(actor, auth.ActionInviteCancel, errNoOrganizationAdmin); err != nil {
		return err
	}
	if err := s.invites.DeleteInvite(ctx, actor.OrgID, id); err != nil {
		return err
	}
	audit.Record(ctx, "membership.invite.cancelled", zap.String("invite_id", id))
	return nil
}

// GetInviteByToken is the public lookup behind an invite link.
func (s *Service) GetInviteByToken(ctx context.Context, token string) (*Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}
	inv, err := s.invites.FindInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := inv.usable(now); err != nil {
		return nil, err
	}
	inv.Status = inv.StatusAt(now)
	return inv, nil
}

// AcceptInput carries the new account's fields. They are ignored when the invited address
// already belongs to a user without an organization.
type AcceptInput struct {
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
}

// AcceptInvite consumes the invite and signs the resulting member in. joined is true when an
// existing account was attached instead of a new one being created.
func (s *Service) AcceptInvite(ctx context.Context, token string, in AcceptInput) (sess *auth.Session, joined bool, err error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.MiddleName = strings.TrimSpace(in.MiddleName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" || in.LastName == "" || in.Password == "" {
		return nil, false, apperr.Invalid("First name, last name and password are required")
	}
	if err := auth.ValidateNames(in.FirstName, in.MiddleName, in.LastName); err != nil {
		return nil, false, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, false, err
	}

	u, joined, err := s.invites.AcceptInvite(ctx, strings.TrimSpace(token), s.now().UTC(), &account.User{
		FirstName:    in.FirstName,
		MiddleName:   in.MiddleName,
		LastName:     in.LastName,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, false, err
	}
	org, err := s.orgs.Find(ctx, u.OrganizationID)
	if err != nil {
		return nil, false, err
	}
	sess, err = s.sessions.NewSession(u, org)
	if err != nil {
		return nil, false, err
	}
	audit.Record(ctx, "membership.invite.accepted",
		zap.String("user_id", u.ID), zap.String("org_id", org.ID), zap.Bool("joined", joined))
	return sess, joined, nil
}

// BulkFailure explains why one address was not invited.
type BulkFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// BulkResult lists the outcome for every address in a bulk invite upload.
type BulkResult struct {
	Success []string      `json:"success"`
	Failed  []BulkFailure `json:"failed"`
}

// BulkInvite invites every distinct valid address found in rows. Each address succeeds or
// fails on its own.
func (s *Service) BulkInvite(ctx context.Context, actor auth.Identity, rows [][]string) (*BulkResult, error) {
	if err := authorize(actor, auth.ActionInviteCreate, errNoOrganizationInvite); err != nil {
		return nil, err
	}
	valid, invalid := importer.Emails(rows)
	if len(valid) == 0 && len(invalid) == 0 {
		return nil, apperr.Invalid("No email addresses found in file")
	}
	res := &BulkResult{Success: []string{}, Failed: []BulkFailure{}}
	for _, email := range invalid {
		res.Failed = append(res.Failed, BulkFailure{Email: email, Reason: ErrInvalidEmail.Message()})
		obs.ImportRowsTotal.WithLabelValues("invite", "failed").Inc()
	}
	for _, email := range valid {
		if _, err := s.createInvite(ctx, actor, email); err != nil {
			if !errors.Is(err, apperr.ErrInvalid) && !errors.Is(err, apperr.ErrConflict) {
				s.log.Error("bulk invite failed", zap.String("email", email), zap.Error(err))
				err = errInviteFailed
			}
			res.Failed = append(res.Failed, BulkFailure{Email: email, Reason: apperr.MessageOf(err, err.Error())})
			obs.ImportRowsTotal.WithLabelValues("invite", "failed").Inc()
			continue
		}
		res.Success = append(res.Success, email)
		obs.ImportRowsTotal.WithLabelValues("invite", "success").Inc()
	}
	return res, nil
}

// inviteContext loads the organization and inviter used to render invite emails. Lookup failures
// only degrade the email.
func (s *Service) inviteContext(ctx context.Context, actor auth.Identity) (*account.Organization, *account.User) {
	org, err := s.orgs.Find(ctx, actor.OrgID)
	if err != nil {
		s.log.Warn("invite organization lookup failed", zap.Error(err))
		org = nil
	}
	inviter, err := s.users.Find(ctx, actor.UserID)
	if err != nil {
		s.log.Warn("invite inviter lookup failed", zap.Error(err))
		inviter = nil
	}
	return org, inviter
}

func (s *Service) sendInvite(inv *Invite, org *account.Organization, inviter *account.User) {
	if s.mail == nil {
		return
	}
	data := mailer.InviteData{
		Email:            inv.Email,
		Token:            inv.Token,
		OrganizationName: "Organization",
		InviterName:      "Admin",
		TTL:              s.ttl,
	}
	if org != nil {
		data.OrganizationName = org.Name
	}
	if inviter != nil {
		data.InviterName = account.FullName(inviter.FirstName, inviter.MiddleName, inviter.LastName)
	}
	msg, err := s.branding.InviteMessage(data)
	if err != nil {
		s.log.Warn("invite email render failed", zap.Error(err))
		return
	}
	if err := s.mail.Enqueue(msg); err != nil {
		s.log.Warn("invite email not queued", zap.String("invite_id", inv.ID), zap.Error(err))
	}
}
