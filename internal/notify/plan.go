package notify

import (
	"fmt"

	"taskflow.dev/internal/tasks"
)

// Kind is the task lifecycle transition being reported.
type Kind int

const (
	KindCreated Kind = iota + 1
	KindUpdated
	KindDeleted
)

// Change describes one committed task mutation. Before is nil for creations, After is nil
// for deletions.
type Change struct {
	Kind    Kind
	ActorID string
	Before  *tasks.Task
	After   *tasks.Task
}

// Planned is a notification that should be delivered to UserID.
type Planned struct {
	UserID  string
	Type    Type
	Title   string
	Message string
}

// Plan derives the notifications for c. The actor never appears as a recipient, and each
// rule addresses a user at most once.
func Plan(c Change) []Planned {
	p := planner{actor: c.ActorID}
	switch c.Kind {
	case KindCreated:
		if c.After == nil {
			return nil
		}
		t := c.After
		p.each(t.AssigneeIDs(), TypeTaskCreated, "New task assigned",
			fmt.Sprintf("New task assigned to you: %s", t.Title))

	case KindUpdated:
		if c.Before == nil || c.After == nil {
			return nil
		}
		prev, next := c.Before, c.After
		creator := next.CreatedBy
		creatorAssigned := next.IsAssigned(creator)

		if prev.Status != next.Status {
			recipients := next.AssigneeIDs()
			if !creatorAssigned {
				recipients = append(recipients, creator)
			}
			p.each(recipients, TypeTaskUpdated, "Task status updated",
				fmt.Sprintf("Task %q status changed to %s", next.Title, next.Status))
		}

		added, removed := tasks.Diff(prev.AssigneeIDs(), next.AssigneeIDs())
		p.each(added, TypeTaskAssigned, "Task assigned",
			fmt.Sprintf("You have been assigned to task: %s", next.Title))
		p.each(removed, TypeTaskUpdated, "Unassigned from task",
			fmt.Sprintf("You have been unassigned from task: %s", next.Title))
		if (len(added) > 0 || len(removed) > 0) && !creatorAssigned {
			p.each([]string{creator}, TypeTaskUpdated, "Task reassigned",
				fmt.Sprintf("Assignees changed on your task: %s", next.Title))
		}

	case KindDeleted:
		if c.Before == nil {
			return nil
		}
		t := c.Before
		p.each(t.AssigneeIDs(), TypeTaskDeleted, "Task deleted",
			fmt.Sprintf("Task %q has been deleted", t.Title))
	}
	return p.out
}

type planner struct {
	actor string
	out   []Planned
}

func (p *planner) each(userIDs []string, typ Type, title, message string) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" || id == p.actor {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p.out = append(p.out, Planned{UserID: id, Type: typ, Title: title, Message: message})
	}
}
