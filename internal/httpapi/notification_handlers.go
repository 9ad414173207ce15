package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskflow.dev/internal/notify"
)

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))
	list, err := a.opts.Notifications.List(r.Context(), identity(r), unreadOnly)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.opts.Notifications.UnreadCount(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.opts.Notifications.MarkRead(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notification": n})
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := a.opts.Notifications.MarkAllRead(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Notifications.Delete(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeMessage(w, "Notification deleted")
}

func (a *API) clearNotifications(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.opts.Notifications.Clear(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All notifications cleared",
		"deleted": deleted,
	})
}
