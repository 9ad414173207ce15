// Package auth implements the credential and session layer: password hashing, HS256
// session tokens, request identity, and the organization policy check.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
	"taskflow.dev/internal/importer"
)

const (
	defaultTokenTTL = 24 * time.Hour
	defaultIssuer   = "taskflow"
	maxNameLength   = 50
)

var errRegisterFields = apperr.Invalid("First name, last name, email, password, and organization name are required")

// Service registers users, checks credentials and verifies session tokens.
type Service struct {
	users    UserStore
	orgs     OrganizationStore
	now      func() time.Time
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing key.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: token secret is empty")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTokenTTL configures session token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration. A token secret is required.
func NewService(users UserStore, orgs OrganizationStore, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		users:    users,
		orgs:     orgs,
		now:      time.Now,
		issuer:   defaultIssuer,
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	return svc, nil
}

// RegisterInput carries the fields of a self-service signup.
type RegisterInput struct {
	FirstName        string `json:"first_name"`
	MiddleName       string `json:"middle_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	OrganizationName string `json:"organizationName"`
}

// Session is the result of a successful register, login or invite acceptance.
type Session struct {
	User         *account.User
	Organization *account.Organization
	Token        string
	ExpiresAt    time.Time
}

// Register creates an admin user together with a new organization and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.MiddleName = strings.TrimSpace(in.MiddleName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = account.NormalizeEmail(in.Email)
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" || in.OrganizationName == "" {
		return nil, errRegisterFields
	}
	if len(in.Email) > account.MaxEmailLength || !importer.ValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidateNames(in.FirstName, in.MiddleName, in.LastName); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &account.User{
		FirstName:    in.FirstName,
		MiddleName:   in.MiddleName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
	}
	org := &account.Organization{Name: in.OrganizationName}
	if err := s.users.Register(ctx, u, org); err != nil {
		return nil, err
	}
	return s.session(u, org)
}

// Login checks credentials. Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = account.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("Email and password are required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	org, err := s.organizationOf(ctx, u)
	if err != nil {
		return nil, err
	}
	return s.session(u, org)
}

// Authenticate verifies token and confirms the user it names still exists.
// The returned identity comes from the token claims, not from storage.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.ParseToken(token)
	if err != nil {
		return Identity{}, err
	}
	if _, err := s.users.Find(ctx, id.UserID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	return id, nil
}

// Profile loads the caller's current user record and organization.
func (s *Service) Profile(ctx context.Context, id Identity) (*account.User, *account.Organization, error) {
	u, err := s.users.Find(ctx, id.UserID)
	if err != nil {
		return nil, nil, err
	}
	org, err := s.organizationOf(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, org, nil
}

// NewSession signs a token for a user created or changed outside this service.
func (s *Service) NewSession(u *account.User, org *account.Organization) (*Session, error) {
	return s.session(u, org)
}

func (s *Service) session(u *account.User, org *account.Organization) (*Session, error) {
	token, exp, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Organization: org, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) organizationOf(ctx context.Context, u *account.User) (*account.Organization, error) {
	if !u.HasOrganization() || s.orgs == nil {
		return nil, nil
	}
	org, err := s.orgs.Find(ctx, u.OrganizationID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, nil
	}
	return org, err
}

// ValidateNames enforces the column limits on name parts.
func ValidateNames(first, middle, last string) error {
	for _, n := range []string{first, middle, last} {
		if len([]rune(n)) > maxNameLength {
			return apperr.Invalid("Names must be at most 50 characters")
		}
	}
	return nil
}
