package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/mailer"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/realtime"
	"taskflow.dev/internal/tasks"
)

// Task list actions broadcast on the organization channel.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Users resolves recipients for email delivery and actor display.
type Users interface {
	Find(ctx context.Context, id string) (*account.User, error)
}

// TaskUpdate is the payload of a task_update event.
type TaskUpdate struct {
	Action string      `json:"action"`
	Task   *tasks.Task `json:"task,omitempty"`
	TaskID string      `json:"taskId,omitempty"`
}

// Pushed is the payload of a notification event.
type Pushed struct {
	Type         Type          `json:"type"`
	Message      string        `json:"message"`
	Notification *Notification `json:"notification"`
}

// Engine turns task changes into stored, pushed and mailed notifications. Delivery problems
// are logged and never returned to the caller of the mutation.
type Engine struct {
	store    Store
	users    Users
	hub      realtime.Publisher
	mail     mailer.Queue
	branding mailer.Branding
	log      *zap.Logger
}

var _ tasks.Notifier = (*Engine)(nil)

type EngineOption func(*Engine)

// WithMail queues an email copy of every notification.
func WithMail(q mailer.Queue, b mailer.Branding) EngineOption {
	return func(e *Engine) {
		e.mail = q
		e.branding = b
	}
}

func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func NewEngine(store Store, users Users, hub realtime.Publisher, opts ...EngineOption) *Engine {
	e := &Engine{store: store, users: users, hub: hub, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) TaskCreated(ctx context.Context, actor auth.Identity, t *tasks.Task) {
	e.apply(ctx, actor, Change{Kind: KindCreated, ActorID: actor.UserID, After: t}, t)
	e.broadcast(t.OrganizationID, TaskUpdate{Action: ActionCreated, Task: t})
}

func (e *Engine) TaskUpdated(ctx context.Context, actor auth.Identity, before, after *tasks.Task) {
	e.apply(ctx, actor, Change{Kind: KindUpdated, ActorID: actor.UserID, Before: before, After: after}, after)
	e.broadcast(after.OrganizationID, TaskUpdate{Action: ActionUpdated, Task: after})
}

func (e *Engine) TaskDeleted(ctx context.Context, actor auth.Identity, t *tasks.Task) {
	e.apply(ctx, actor, Change{Kind: KindDeleted, ActorID: actor.UserID, Before: t}, nil)
	e.broadcast(t.OrganizationID, TaskUpdate{Action: ActionDeleted, TaskID: t.ID})
}

// apply delivers every planned notification. ref is nil when the task no longer exists.
func (e *Engine) apply(ctx context.Context, actor auth.Identity, c Change, ref *tasks.Task) {
	plans := Plan(c)
	if len(plans) == 0 {
		return
	}
	orgID := actor.OrgID
	if ref != nil {
		orgID = ref.OrganizationID
	} else if c.Before != nil {
		orgID = c.Before.OrganizationID
	}
	var actorSummary *account.Summary
	if u, err := e.users.Find(ctx, actor.UserID); err == nil {
		s := u.Summary()
		actorSummary = &s
	}
	for _, p := range plans {
		n := &Notification{
			UserID:         p.UserID,
			OrganizationID: orgID,
			Type:           p.Type,
			Title:          p.Title,
			Message:        p.Message,
			ActorID:        strPtr(actor.UserID),
			Actor:          actorSummary,
		}
		if ref != nil {
			n.TaskID = strPtr(ref.ID)
			n.Task = &TaskRef{ID: ref.ID, Title: ref.Title, Status: string(ref.Status)}
		}
		_ = e.Send(ctx, n)
	}
}

// Send persists n, pushes it to the recipient's channel and queues the email copy. A
// storage failure is logged and returned; push and mail are best effort.
func (e *Engine) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	if err := e.store.Create(ctx, n); err != nil {
		e.log.Error("notification store failed",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)), zap.Error(err))
		return err
	}
	obs.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()

	if evt, err := realtime.NewEvent(realtime.EventNotification, Pushed{Type: n.Type, Message: n.Message, Notification: n}); err == nil {
		e.hub.ToUser(n.UserID, evt)
	} else {
		e.log.Warn("notification encode failed", zap.Error(err))
	}
	e.email(ctx, n)
	return nil
}

func (e *Engine) email(ctx context.Context, n *Notification) {
	if e.mail == nil {
		return
	}
	u, err := e.users.Find(ctx, n.UserID)
	if err != nil {
		e.log.Warn("notification email recipient lookup failed", zap.String("user_id", n.UserID), zap.Error(err))
		return
	}
	msg, err := e.branding.NotificationMessage(u.Email, account.FullName(u.FirstName, u.MiddleName, u.LastName), n.Title, n.Message)
	if err != nil {
		e.log.Warn("notification email render failed", zap.Error(err))
		return
	}
	if err := e.mail.Enqueue(msg); err != nil {
		e.log.Warn("notification email not queued", zap.String("user_id", n.UserID), zap.Error(err))
	}
}

func (e *Engine) broadcast(orgID string, u TaskUpdate) {
	evt, err := realtime.NewEvent(realtime.EventTaskUpdate, u)
	if err != nil {
		e.log.Warn("task update encode failed", zap.Error(err))
		return
	}
	e.hub.ToOrg(orgID, evt)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InviteReceived tells an existing user without an organization that orgName invited them.
func (e *Engine) InviteReceived(ctx context.Context, userID, orgID, orgName, inviterID string) error {
	return e.Send(ctx, &Notification{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeInviteReceived,
		Title:          "Organization invite",
		Message:        fmt.Sprintf("You have been invited to join %s. Check your email to accept.", orgName),
		ActorID:        strPtr(inviterID),
	})
}
