package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/membership"
)

type organizationRequest struct {
	Name string `json:"name"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

func views(users []*account.User) []account.View {
	out := make([]account.View, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}
	return out
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := a.opts.Membership.GetOrganization(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (a *API) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	org, err := a.opts.Membership.UpdateOrganization(r.Context(), identity(r), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.opts.Membership.ListMembers(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": views(members)})
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Membership.RemoveMember(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeMessage(w, "Member removed successfully")
}

func (a *API) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	member, err := a.opts.Membership.UpdateMemberRole(r.Context(), identity(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": member.View()})
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	inv, err := a.opts.Membership.CreateInvite(r.Context(), identity(r), req.Email)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Invite sent successfully",
		"invite":  inv,
	})
}

func (a *API) listInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := a.opts.Membership.ListInvites(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if invites == nil {
		invites = []*membership.Invite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (a *API) bulkInvite(w http.ResponseWriter, r *http.Request) {
	rows, err := readUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.opts.Membership.BulkInvite(r.Context(), identity(r), rows)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bulk invite processed",
		"results": res,
	})
}

func (a *API) resendInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := a.opts.Membership.ResendInvite(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Invite resent successfully",
		"invite":  inv,
	})
}

func (a *API) cancelInvite(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Membership.CancelInvite(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeMessage(w, "Invite cancelled successfully")
}

// Public invite endpoints; the token is the credential.

func (a *API) getInviteByToken(w http.ResponseWriter, r *http.Request) {
	inv, err := a.opts.Membership.GetInviteByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invite": inv})
}

func (a *API) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req membership.AcceptInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sess, joined, err := a.opts.Membership.AcceptInvite(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if joined {
		writeJSON(w, http.StatusOK, newSessionResponse("Joined organization successfully", sess))
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse("Account created successfully", sess))
}
