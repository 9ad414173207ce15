// Package account holds users and organizations, the identities every other package scopes by.
package account

import (
	"strings"
	"time"

	"taskflow.dev/internal/apperr"
)

var (
	ErrNotFound   = apperr.NotFound("User not found")
	ErrEmailTaken = apperr.Conflict("Email already registered")
)

// Role is a member's role inside their organization.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole accepts the two known roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	}
	return "", apperr.Invalid("Role must be either admin or member")
}

// User is a person who may or may not currently belong to an organization.
type User struct {
	ID             string
	FirstName      string
	MiddleName     string
	LastName       string
	Email          string
	PasswordHash   string
	OrganizationID string
	Role           Role
	InvitedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasOrganization reports whether the user is attached to an organization.
func (u *User) HasOrganization() bool { return u != nil && u.OrganizationID != "" }

// IsAdmin reports whether the user administers their organization.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Organization is the tenant boundary.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxEmailLength matches the users.email and invites.email columns.
const MaxEmailLength = 100

// NormalizeEmail trims and lower-cases an address for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
