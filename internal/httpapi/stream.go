package httpapi

import (
	"context"
	"net/http"

	"taskflow.dev/internal/realtime"
)

// Events streams the caller's personal and organization events as Server-Sent Events
// until the client leaves or CloseStreams is called.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	if a.opts.Events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Streaming disabled")
		return
	}
	id := identity(r)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(a.streams, cancel)
	defer stop()

	ch := a.opts.Events.Subscribe(ctx, id.UserID, id.OrgID)
	realtime.ServeSSE(w, r.WithContext(ctx), ch, a.opts.Heartbeat)
}
