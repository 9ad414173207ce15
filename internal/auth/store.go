package auth

import (
	"context"

	"taskflow.dev/internal/account"
)

// UserStore is the slice of account storage the session layer needs.
type UserStore interface {
	Find(ctx context.Context, id string) (*account.User, error)
	FindByEmail(ctx context.Context, email string) (*account.User, error)
	Register(ctx context.Context, u *account.User, org *account.Organization) error
}

// OrganizationStore resolves a user's organization for profile and login responses.
type OrganizationStore interface {
	Find(ctx context.Context, id string) (*account.Organization, error)
}
