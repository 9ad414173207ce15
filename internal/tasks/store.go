package tasks

import (
	"context"
	"time"
)

// Store persists tasks. Every read and write is scoped by organization id.
type Store interface {
	// Create inserts t and its assignees. Assignees outside t's organization abort the insert.
	Create(ctx context.Context, t *Task, assigneeIDs []string) (*Task, error)
	Get(ctx context.Context, orgID, id string) (*Task, error)
	List(ctx context.Context, orgID string, f Filter) ([]*Task, int, error)
	// Update writes t's fields. A nil assigneeIDs leaves the assignee set untouched.
	Update(ctx context.Context, t *Task, assigneeIDs []string) (*Task, error)
	Delete(ctx context.Context, orgID, id string) error
	Stats(ctx context.Context, orgID string) (Stats, error)

	// DueSoon returns unfinished tasks due in [from, until] that were not flagged yet.
	DueSoon(ctx context.Context, from, until time.Time, limit int) ([]*Task, error)
	MarkDueSoonNotified(ctx context.Context, id string, at time.Time) error
}
