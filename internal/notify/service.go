package notify

import (
	"context"

	"taskflow.dev/internal/auth"
)

// Service is the reader-facing side: every call acts on the caller's own notifications.
// Users without an organization may still read invite notifications, so no organization
// is required.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context, caller auth.Identity, unreadOnly bool) ([]*Notification, error) {
	return s.store.List(ctx, caller.UserID, unreadOnly, MaxList)
}

func (s *Service) UnreadCount(ctx context.Context, caller auth.Identity) (int, error) {
	return s.store.UnreadCount(ctx, caller.UserID)
}

func (s *Service) MarkRead(ctx context.Context, caller auth.Identity, id string) (*Notification, error) {
	return s.store.MarkRead(ctx, caller.UserID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, caller auth.Identity) (int64, error) {
	return s.store.MarkAllRead(ctx, caller.UserID)
}

func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	return s.store.Delete(ctx, caller.UserID, id)
}

func (s *Service) Clear(ctx context.Context, caller auth.Identity) (int64, error) {
	return s.store.Clear(ctx, caller.UserID)
}
