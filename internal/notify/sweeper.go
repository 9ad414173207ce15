package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskflow.dev/internal/tasks"
)

// DueSource finds tasks approaching their due date and flags them once handled.
type DueSource interface {
	DueSoon(ctx context.Context, from, until time.Time, limit int) ([]*tasks.Task, error)
	MarkDueSoonNotified(ctx context.Context, id string, at time.Time) error
}

// Sweeper periodically sends task_due_soon to the assignees of unfinished tasks whose due
// date falls inside the window. Each task fires once until its due date changes.
type Sweeper struct {
	source   DueSource
	engine   *Engine
	interval time.Duration
	window   time.Duration
	batch    int
	now      func() time.Time
	log      *zap.Logger
}

func NewSweeper(source DueSource, engine *Engine, interval, window time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		source:   source,
		engine:   engine,
		interval: interval,
		window:   window,
		batch:    500,
		now:      time.Now,
		log:      log,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if n, err := s.Sweep(ctx); err != nil {
			s.log.Warn("due soon sweep failed", zap.Error(err))
		} else if n > 0 {
			s.log.Info("due soon notifications sent", zap.Int("tasks", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep handles one batch and returns how many tasks were flagged.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.source.DueSoon(ctx, now, now.Add(s.window), s.batch)
	if err != nil {
		return 0, err
	}
	flagged := 0
	for _, t := range due {
		assignees := t.AssigneeIDs()
		sent := 0
		for _, userID := range assignees {
			taskID := t.ID
			err := s.engine.Send(ctx, &Notification{
				UserID:         userID,
				OrganizationID: t.OrganizationID,
				Type:           TypeTaskDueSoon,
				Title:          "Task due soon",
				Message:        fmt.Sprintf("Task %q is due %s", t.Title, t.DueDate.UTC().Format("Jan 2, 2006 15:04 MST")),
				TaskID:         &taskID,
				Task:           &TaskRef{ID: t.ID, Title: t.Title, Status: string(t.Status)},
			})
			if err == nil {
				sent++
			}
		}
		// Leave the task unflagged so the next sweep retries it.
		if len(assignees) > 0 && sent == 0 {
			continue
		}
		if err := s.source.MarkDueSoonNotified(ctx, t.ID, now); err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}
