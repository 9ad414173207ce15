package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskflow.dev/internal/account"
)

// Identity is what a session token asserts about its bearer. It is not re-read from
// storage on each request, so org and role may lag behind for the token's lifetime.
type Identity struct {
	UserID string       `json:"id"`
	Email  string       `json:"email"`
	OrgID  string       `json:"org_id,omitempty"`
	Role   account.Role `json:"role"`
}

// IdentityOf snapshots a stored user.
func IdentityOf(u *account.User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, OrgID: u.OrganizationID, Role: u.Role}
}

func (i Identity) HasOrganization() bool { return i.OrgID != "" }
func (i Identity) IsAdmin() bool         { return i.Role == account.RoleAdmin }

// Claims represents JWT claims used across the service.
type Claims struct {
	Email string `json:"email"`
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 session token for u.
func (s *Service) IssueToken(u *account.User) (string, time.Time, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return "", time.Time{}, errors.New("auth: user is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.tokenTTL)
	claims := Claims{
		Email: u.Email,
		OrgID: u.OrganizationID,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken verifies the signature and required claims. It does not touch storage.
func (s *Service) ParseToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		OrgID:  claims.OrgID,
		Role:   account.Role(claims.Role),
	}, nil
}

func (s *Service) validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if _, err := account.ParseRole(claims.Role); err != nil {
		return err
	}
	now := s.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
