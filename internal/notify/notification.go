// Package notify derives per-user notifications from task changes and fans them out to
// storage, the realtime hub and email.
package notify

import (
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
)

var ErrNotFound = apperr.NotFound("Notification not found")

// Type classifies a notification.
type Type string

const (
	TypeTaskCreated    Type = "task_created"
	TypeTaskUpdated    Type = "task_updated"
	TypeTaskDeleted    Type = "task_deleted"
	TypeTaskAssigned   Type = "task_assigned"
	TypeTaskDueSoon    Type = "task_due_soon"
	TypeInviteReceived Type = "invite_received"
	TypeInfo           Type = "info"
)

// TaskRef is the slice of a task shown alongside a notification.
type TaskRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Notification is one message addressed to a single user.
type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	OrganizationID string           `json:"org_id"`
	Type           Type             `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Read           bool             `json:"read"`
	TaskID         *string          `json:"task_id"`
	ActorID        *string          `json:"actor_id"`
	Actor          *account.Summary `json:"actor,omitempty"`
	Task           *TaskRef         `json:"task,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// MaxList caps how many notifications a listing returns.
const MaxList = 100
