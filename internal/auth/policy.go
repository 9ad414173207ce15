package auth

import (
	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
)

// Action names something a caller may attempt inside an organization.
type Action string

const (
	ActionOrganizationRead   Action = "organization.read"
	ActionOrganizationUpdate Action = "organization.update"
	ActionMembersRead        Action = "members.read"
	ActionMemberRemove       Action = "members.remove"
	ActionMemberRole         Action = "members.role"
	ActionInviteCreate       Action = "invites.create"
	ActionInviteRead         Action = "invites.read"
	ActionInviteResend       Action = "invites.resend"
	ActionInviteCancel       Action = "invites.cancel"
	ActionTaskRead           Action = "tasks.read"
	ActionTaskWrite          Action = "tasks.write"
)

type capability struct {
	minRole account.Role
	denied  string
}

var capabilities = map[Action]capability{
	ActionOrganizationRead:   {minRole: account.RoleMember},
	ActionOrganizationUpdate: {minRole: account.RoleAdmin, denied: "Only admins can update organization"},
	ActionMembersRead:        {minRole: account.RoleMember},
	ActionMemberRemove:       {minRole: account.RoleAdmin, denied: "Only admins can remove members"},
	ActionMemberRole:         {minRole: account.RoleAdmin, denied: "Only admins can update member roles"},
	ActionInviteCreate:       {minRole: account.RoleAdmin, denied: "Only admins can invite members"},
	ActionInviteRead:         {minRole: account.RoleAdmin, denied: "Only admins can view invites"},
	ActionInviteResend:       {minRole: account.RoleAdmin, denied: "Only admins can resend invites"},
	ActionInviteCancel:       {minRole: account.RoleAdmin, denied: "Only admins can cancel invites"},
	ActionTaskRead:           {minRole: account.RoleMember},
	ActionTaskWrite:          {minRole: account.RoleMember},
}

// Resource identifies the object an action targets. An empty OrgID means the caller's own organization.
type Resource struct {
	OrgID string
}

// Authorize is the single policy check every organization-scoped operation goes through.
// Checks run in a fixed order: membership, role, then resource ownership. A resource in
// another organization is reported as ErrNotFound so its existence is not revealed.
func Authorize(id Identity, action Action, res Resource) error {
	if !id.HasOrganization() {
		return ErrNoOrganization
	}
	c, ok := capabilities[action]
	if !ok {
		return ErrForbidden
	}
	if c.minRole == account.RoleAdmin && !id.IsAdmin() {
		if c.denied != "" {
			return apperr.Forbidden(c.denied)
		}
		return ErrForbidden
	}
	if res.OrgID != "" && res.OrgID != id.OrgID {
		return ErrNotFound
	}
	return nil
}

// Can reports whether Authorize would allow the action on the caller's own organization.
func Can(id Identity, action Action) bool {
	return Authorize(id, action, Resource{}) == nil
}
