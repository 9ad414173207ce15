// Package tasks stores organization-scoped tasks with a many-to-many assignee set.
package tasks

import (
	"sort"
	"strings"
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
)

var (
	ErrNotFound          = apperr.NotFound("Task not found")
	ErrTitleRequired     = apperr.Invalid("Title is required")
	ErrTitleTooLong      = apperr.Invalid("Title must be at most 255 characters")
	ErrInvalidStatus     = apperr.Invalid("Status must be one of: Pending, In Progress, Completed")
	ErrInvalidDueDate    = apperr.Invalid("Invalid due date")
	ErrAssigneeNotMember = apperr.Invalid("Assigned users must be members of your organization")
)

const maxTitleLength = 255

// Status is the task workflow state.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// ParseStatus matches s case-insensitively, also accepting in_progress and in-progress.
func ParseStatus(s string) (Status, error) {
	key := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if strings.ToLower(string(st)) == key {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// Task is one unit of work inside an organization.
type Task struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         Status            `json:"status"`
	DueDate        *time.Time        `json:"due_date"`
	CreatedBy      string            `json:"created_by"`
	OrganizationID string            `json:"org_id"`
	Creator        *account.Summary  `json:"creator,omitempty"`
	Assignees      []account.Summary `json:"assignees"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AssigneeIDs returns the ids of the current assignees.
func (t *Task) AssigneeIDs() []string {
	out := make([]string, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		out = append(out, a.ID)
	}
	return out
}

// IsAssigned reports whether userID is among the assignees.
func (t *Task) IsAssigned(userID string) bool {
	for _, a := range t.Assignees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a pre-update snapshot survives mutation.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Assignees = append([]account.Summary(nil), t.Assignees...)
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	if t.Creator != nil {
		c := *t.Creator
		cp.Creator = &c
	}
	return &cp
}

// Diff compares two assignee id sets. added holds ids only in next, removed ids only in prev.
// Both results are sorted and never share an element.
func Diff(prev, next []string) (added, removed []string) {
	before := toSet(prev)
	after := toSet(next)
	for id := range after {
		if _, ok := before[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Dedupe trims ids and removes blanks and repeats, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Filter narrows a task listing.
type Filter struct {
	Status     Status
	AssigneeID string
	Page       int
	Limit      int
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize clamps paging to page >= 1 and limit in [1, MaxLimit], defaulting to DefaultLimit.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f
}

// Offset is the number of rows skipped for the current page.
func (f Filter) Offset() int { return (f.Page - 1) * f.Limit }

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page metadata for total matching rows.
func NewPagination(f Filter, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return Pagination{
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    f.Page < pages,
		HasPrev:    f.Page > 1,
	}
}

// Page is one page of tasks.
type Page struct {
	Tasks      []*Task    `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}

// Stats counts an organization's tasks by status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}
