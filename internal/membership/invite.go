// Package membership manages an organization's members and the invite flow that brings new
// ones in.
package membership

import (
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
)

// InviteTTL is how long an invite stays valid after creation or resend.
const InviteTTL = 7 * 24 * time.Hour

var (
	ErrInviteNotFound    = apperr.NotFound("Invite not found")
	ErrInviteAccepted    = apperr.Invalid("Invite has already been accepted")
	ErrInviteExpired     = apperr.Invalid("Invite has expired")
	ErrAlreadyInvited    = apperr.Conflict("An invite has already been sent to this email")
	ErrAlreadyMember     = apperr.Conflict("User is already a member of this organization")
	ErrEmailInOtherOrg   = apperr.Conflict("Email is already registered with another organization")
	ErrEmailRequired     = apperr.Invalid("Email is required")
	ErrInvalidEmail      = apperr.Invalid("Invalid email format")
	ErrMemberNotFound    = apperr.NotFound("Member not found")
	ErrCannotRemoveAdmin = apperr.Invalid("Cannot remove admin")
	ErrNameRequired      = apperr.Invalid("Organization name is required")
	ErrNameTooLong       = apperr.Invalid("Organization name must be at most 100 characters")
)

// InviteStatus is derived from the accepted flag and the expiry.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
)

// OrganizationRef is the part of an organization shown with an invite.
type OrganizationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Invite grants one email address the right to join an organization. The token is the
// public lookup key and is only ever sent by email.
type Invite struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	OrganizationID string           `json:"org_id"`
	Token          string           `json:"-"`
	InvitedBy      string           `json:"invited_by,omitempty"`
	Accepted       bool             `json:"accepted"`
	Status         InviteStatus     `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Inviter        *account.Summary `json:"inviter,omitempty"`
	Organization   *OrganizationRef `json:"organization,omitempty"`
}

// StatusAt derives the lifecycle state at now.
func (i *Invite) StatusAt(now time.Time) InviteStatus {
	switch {
	case i.Accepted:
		return InviteAccepted
	case !now.Before(i.ExpiresAt):
		return InviteExpired
	default:
		return InvitePending
	}
}

// usable reports why an invite cannot be used at now, or nil.
func (i *Invite) usable(now time.Time) error {
	switch i.StatusAt(now) {
	case InviteAccepted:
		return ErrInviteAccepted
	case InviteExpired:
		return ErrInviteExpired
	}
	return nil
}
