package account

import "context"

// UserStore manages users and their organization membership.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindInOrg(ctx context.Context, orgID, id string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
	// CountInOrg counts how many of the distinct ids belong to orgID.
	CountInOrg(ctx context.Context, orgID string, ids []string) (int, error)
	// Register creates the user as admin of a new organization in one transaction.
	Register(ctx context.Context, u *User, org *Organization) error
	// Detach clears the user's organization and resets the role to member.
	Detach(ctx context.Context, orgID, userID string) error
	SetRole(ctx context.Context, orgID, userID string, role Role) (*User, error)
}

// OrganizationStore manages organizations.
type OrganizationStore interface {
	Find(ctx context.Context, id string) (*Organization, error)
	Rename(ctx context.Context, id, name string) (*Organization, error)
}
