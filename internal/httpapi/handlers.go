// Package httpapi exposes the task tracker over HTTP JSON and a Server-Sent Events stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/membership"
	"taskflow.dev/internal/notify"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/realtime"
	"taskflow.dev/internal/tasks"
)

const (
	serviceName  = "taskflow"
	maxJSONBytes = 1 << 20
)

// AccountService covers signup, login and token verification.
type AccountService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
	Profile(ctx context.Context, id auth.Identity) (*account.User, *account.Organization, error)
}

// MembershipService covers the organization, its members and invites.
type MembershipService interface {
	GetOrganization(ctx context.Context, actor auth.Identity) (*account.Organization, error)
	UpdateOrganization(ctx context.Context, actor auth.Identity, name string) (*account.Organization, error)
	ListMembers(ctx context.Context, actor auth.Identity) ([]*account.User, error)
	RemoveMember(ctx context.Context, actor auth.Identity, memberID string) error
	UpdateMemberRole(ctx context.Context, actor auth.Identity, memberID, role string) (*account.User, error)
	CreateInvite(ctx context.Context, actor auth.Identity, email string) (*membership.Invite, error)
	ListInvites(ctx context.Context, actor auth.Identity) ([]*membership.Invite, error)
	ResendInvite(ctx context.Context, actor auth.Identity, id string) (*membership.Invite, error)
	CancelInvite(ctx context.Context, actor auth.Identity, id string) error
	BulkInvite(ctx context.Context, actor auth.Identity, rows [][]string) (*membership.BulkResult, error)
	GetInviteByToken(ctx context.Context, token string) (*membership.Invite, error)
	AcceptInvite(ctx context.Context, token string, in membership.AcceptInput) (*auth.Session, bool, error)
}

// TaskService covers task CRUD, listing and import.
type TaskService interface {
	Create(ctx context.Context, actor auth.Identity, in tasks.CreateInput) (*tasks.Task, error)
	Get(ctx context.Context, actor auth.Identity, id string) (*tasks.Task, error)
	List(ctx context.Context, actor auth.Identity, f tasks.Filter) (*tasks.Page, error)
	Update(ctx context.Context, actor auth.Identity, id string, in tasks.UpdateInput) (*tasks.Task, error)
	Delete(ctx context.Context, actor auth.Identity, id string) error
	Stats(ctx context.Context, actor auth.Identity) (tasks.Stats, error)
	Users(ctx context.Context, actor auth.Identity) ([]*account.User, error)
	Import(ctx context.Context, actor auth.Identity, rows [][]string) (*tasks.ImportResult, error)
}

// NotificationService is the caller's notification inbox.
type NotificationService interface {
	List(ctx context.Context, caller auth.Identity, unreadOnly bool) ([]*notify.Notification, error)
	UnreadCount(ctx context.Context, caller auth.Identity) (int, error)
	MarkRead(ctx context.Context, caller auth.Identity, id string) (*notify.Notification, error)
	MarkAllRead(ctx context.Context, caller auth.Identity) (int64, error)
	Delete(ctx context.Context, caller auth.Identity, id string) error
	Clear(ctx context.Context, caller auth.Identity) (int64, error)
}

// Subscriber opens a realtime subscription for one connected user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID, orgID string) <-chan realtime.Event
}

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Options wires the API to its services.
type Options struct {
	Auth          AccountService
	Membership    MembershipService
	Tasks         TaskService
	Notifications NotificationService
	Events        Subscriber
	Ready         ReadinessChecker
	Log           *zap.Logger

	Version       string
	CORSOrigins   []string
	RateBurst     int
	RatePerSecond int
	Heartbeat     time.Duration
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	opts    Options
	log     *zap.Logger
	limiter *rateLimiter

	// streams ends every open event stream when cancelled.
	streams      context.Context
	closeStreams context.CancelFunc
}

func New(opts Options) *API {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 60
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 30
	}
	a := &API{
		router:  chi.NewRouter(),
		opts:    opts,
		log:     log,
		limiter: newRateLimiter(opts.RateBurst, opts.RatePerSecond),
	}
	a.streams, a.closeStreams = context.WithCancel(context.Background())
	a.routes()
	return a
}

// CloseStreams ends open /api/events connections. http.Server.Shutdown does not cancel
// request contexts, so register this with RegisterOnShutdown.
func (a *API) CloseStreams() {
	a.closeStreams()
}

func (a *API) routes() {
	r := a.router
	r.Use(middleware.RequestID)
	r.Use(withRequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logging)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	}))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.rateLimit)

		r.Post("/auth/register", a.register)
		r.Post("/auth/login", a.login)
		r.Get("/invites/{token}", a.getInviteByToken)
		r.Post("/invites/{token}/accept", a.acceptInvite)

		// EventSource cannot set headers, so the token may also arrive as ?token=.
		r.With(a.withAuth(true)).Get("/events", a.Events)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth(false))

			r.Get("/auth/profile", a.profile)

			r.Route("/organization", func(r chi.Router) {
				r.Get("/", a.getOrganization)
				r.Put("/", a.updateOrganization)
				r.Get("/members", a.listMembers)
				r.Delete("/members/{id}", a.removeMember)
				r.Put("/members/{id}/role", a.updateMemberRole)
				r.Post("/invites", a.createInvite)
				r.Get("/invites", a.listInvites)
				r.Post("/invites/bulk", a.bulkInvite)
				r.Post("/invites/{id}/resend", a.resendInvite)
				r.Delete("/invites/{id}", a.cancelInvite)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", a.listTasks)
				r.Post("/", a.createTask)
				r.Post("/bulk", a.bulkTasks)
				r.Get("/stats", a.taskStats)
				r.Get("/users", a.taskUsers)
				r.Get("/{id}", a.getTask)
				r.Put("/{id}", a.updateTask)
				r.Delete("/{id}", a.deleteTask)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", a.listNotifications)
				r.Get("/unread-count", a.unreadCount)
				r.Put("/read-all", a.markAllRead)
				r.Delete("/clear", a.clearNotifications)
				r.Put("/{id}/read", a.markRead)
				r.Delete("/{id}", a.deleteNotification)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler returns the router wrapped in request metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		if err := a.opts.Ready.Check(r.Context()); err != nil {
			a.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// statusOf maps an error's kind to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalid), errors.Is(err, apperr.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err to the client. Unclassified errors are logged and reported generically.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, r, code, "Internal server error")
		return
	}
	writeError(w, r, code, apperr.MessageOf(err, err.Error()))
}

var errBodyRequired = apperr.Invalid("Request body is required")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("Request body too large")
		}
		return apperr.Invalid("Invalid JSON: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Invalid("Unexpected data after JSON body")
	}
	return nil
}

func parsePositiveInt(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, apperr.Invalid("page and limit must be positive integers")
	}
	return val, nil
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
