package membership

import (
	"context"
	"time"

	"taskflow.dev/internal/account"
)

// Store persists invites.
type Store interface {
	// CreateInvite inserts inv, first removing an expired open invite for the same address.
	// A live open invite makes it fail with ErrAlreadyInvited.
	CreateInvite(ctx context.Context, inv *Invite, now time.Time) error
	ListInvites(ctx context.Context, orgID string) ([]*Invite, error)
	FindInvite(ctx context.Context, orgID, id string) (*Invite, error)
	FindInviteByToken(ctx context.Context, token string) (*Invite, error)
	// ExtendInvite moves the expiry of an open invite.
	ExtendInvite(ctx context.Context, orgID, id string, expiresAt time.Time) (*Invite, error)
	DeleteInvite(ctx context.Context, orgID, id string) error
	// AcceptInvite consumes the invite exactly once. An existing user without an organization
	// is attached; otherwise newUser is created. joined reports the former case.
	AcceptInvite(ctx context.Context, token string, now time.Time, newUser *account.User) (u *account.User, joined bool, err error)
}
