package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/apperr"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/importer"
	"taskflow.dev/internal/obs"
)

// Notifier observes committed task mutations. before is the persisted state prior to the change.
type Notifier interface {
	TaskCreated(ctx context.Context, actor auth.Identity, t *Task)
	TaskUpdated(ctx context.Context, actor auth.Identity, before, after *Task)
	TaskDeleted(ctx context.Context, actor auth.Identity, t *Task)
}

// Members resolves organization membership for assignee checks.
type Members interface {
	ListByOrg(ctx context.Context, orgID string) ([]*account.User, error)
	CountInOrg(ctx context.Context, orgID string, userIDs []string) (int, error)
}

var errRowFailed = errors.New("failed to create task")

type nopNotifier struct{}

func (nopNotifier) TaskCreated(context.Context, auth.Identity, *Task)        {}
func (nopNotifier) TaskUpdated(context.Context, auth.Identity, *Task, *Task) {}
func (nopNotifier) TaskDeleted(context.Context, auth.Identity, *Task)        {}

// Service implements task operations for authenticated callers.
type Service struct {
	store    Store
	members  Members
	notifier Notifier
	log      *zap.Logger
}

// NewService wires the task service. A nil notifier disables notifications.
func NewService(store Store, members Members, notifier Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, members: members, notifier: notifier, log: log}
}

// CreateInput is the body of a task creation request.
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	DueDate     *string  `json:"due_date"`
	AssignedTo  []string `json:"assigned_to"`
}

// UpdateInput carries only the fields being changed. AssignedTo replaces the whole set when
// non-nil; an empty slice clears it. An empty DueDate string clears the due date.
type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	DueDate     *string   `json:"due_date"`
	AssignedTo  *[]string `json:"assigned_to"`
}

func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*Task, error) {
	if err := auth.Authorize(actor, auth.ActionTaskWrite, auth.Resource{}); err != nil {
		return nil, err
	}
	t := &Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Status:         StatusPending,
		CreatedBy:      actor.UserID,
		OrganizationID: actor.OrgID,
	}
	if err := validateTitle(t.Title); err != nil {
		return nil, err
	}
	if in.Status != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		t.Status = st
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		t.DueDate = due
	}
	assignees := Dedupe(in.AssignedTo)
	if err := s.checkMembers(ctx, actor.OrgID, assignees); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, t, assignees)
	if err != nil {
		return nil, err
	}
	s.notifier.TaskCreated(ctx, actor, created)
	return created, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (*Task, error) {
	if err := auth.Authorize(actor, auth.ActionTaskRead, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, actor.OrgID, id)
}

func (s *Service) List(ctx context.Context, actor auth.Identity, f Filter) (*Page, error) {
	if err := auth.Authorize(actor, auth.ActionTaskRead, auth.Resource{}); err != nil {
		return nil, err
	}
	f = f.Normalize()
	list, total, err := s.store.List(ctx, actor.OrgID, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Task{}
	}
	return &Page{Tasks: list, Pagination: NewPagination(f, total)}, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, in UpdateInput) (*Task, error) {
	if err := auth.Authorize(actor, auth.ActionTaskWrite, auth.Resource{}); err != nil {
		return nil, err
	}
	before, err := s.store.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.ActionTaskWrite, auth.Resource{OrgID: before.OrganizationID}); err != nil {
		return nil, err
	}

	next := before.Clone()
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
		if err := validateTitle(next.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		next.Status = st
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		next.DueDate = due
	}
	var assignees []string
	if in.AssignedTo != nil {
		assignees = Dedupe(*in.AssignedTo)
		if err := s.checkMembers(ctx, actor.OrgID, assignees); err != nil {
			return nil, err
		}
	}

	after, err := s.store.Update(ctx, next, assignees)
	if err != nil {
		return nil, err
	}
	s.notifier.TaskUpdated(ctx, actor, before, after)
	return after, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) error {
	if err := auth.Authorize(actor, auth.ActionTaskWrite, auth.Resource{}); err != nil {
		return err
	}
	t, err := s.store.Get(ctx, actor.OrgID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, actor.OrgID, id); err != nil {
		return err
	}
	s.notifier.TaskDeleted(ctx, actor, t)
	return nil
}

func (s *Service) Stats(ctx context.Context, actor auth.Identity) (Stats, error) {
	if err := auth.Authorize(actor, auth.ActionTaskRead, auth.Resource{}); err != nil {
		return Stats{}, err
	}
	return s.store.Stats(ctx, actor.OrgID)
}

// Users lists the members a task can be assigned to.
func (s *Service) Users(ctx context.Context, actor auth.Identity) ([]*account.User, error) {
	if err := auth.Authorize(actor, auth.ActionTaskRead, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.members.ListByOrg(ctx, actor.OrgID)
}

// checkMembers rejects the whole set if any id is not in orgID. The store repeats the
// check inside its transaction.
func (s *Service) checkMembers(ctx context.Context, orgID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.members.CountInOrg(ctx, orgID, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return ErrAssigneeNotMember
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func parseDueDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, ok := importer.ParseDate(s)
	if !ok {
		return nil, ErrInvalidDueDate
	}
	return &t, nil
}

// ImportRow reports the outcome of one spreadsheet row.
type ImportRow struct {
	Row   int    `json:"row"`
	Title string `json:"title,omitempty"`
	Task  *Task  `json:"task,omitempty"`
	Error string `json:"error,omitempty"`
}

// ImportResult is the per-row ledger of a bulk import.
type ImportResult struct {
	Success []ImportRow `json:"success"`
	Failed  []ImportRow `json:"failed"`
}

// Import creates one task per data row. Rows succeed or fail independently; an unreadable
// due date is dropped rather than failing the row.
func (s *Service) Import(ctx context.Context, actor auth.Identity, rows [][]string) (*ImportResult, error) {
	if err := auth.Authorize(actor, auth.ActionTaskWrite, auth.Resource{}); err != nil {
		return nil, err
	}
	records := importer.Table(rows)
	if len(records) == 0 {
		return nil, importer.ErrEmptyFile
	}
	members, err := s.members.ListByOrg(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]string, len(members))
	for _, m := range members {
		byEmail[account.NormalizeEmail(m.Email)] = m.ID
	}

	res := &ImportResult{Success: []ImportRow{}, Failed: []ImportRow{}}
	for _, rec := range records {
		row, err := s.importRecord(ctx, actor, rec, byEmail)
		if err != nil {
			row.Error = apperr.MessageOf(err, err.Error())
			res.Failed = append(res.Failed, row)
			obs.ImportRowsTotal.WithLabelValues("task", "failed").Inc()
			continue
		}
		res.Success = append(res.Success, row)
		obs.ImportRowsTotal.WithLabelValues("task", "success").Inc()
	}
	return res, nil
}

func (s *Service) importRecord(ctx context.Context, actor auth.Identity, rec importer.Record, byEmail map[string]string) (ImportRow, error) {
	row := ImportRow{Row: rec.Row, Title: rec.Get("title", "name", "task")}
	t := &Task{
		Title:          strings.TrimSpace(row.Title),
		Description:    rec.Get("description", "details", "notes"),
		Status:         StatusPending,
		CreatedBy:      actor.UserID,
		OrganizationID: actor.OrgID,
	}
	if err := validateTitle(t.Title); err != nil {
		return row, err
	}
	if raw := rec.Get("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return row, apperr.Invalid(fmt.Sprintf("Invalid status %q. %s", raw, err.Error()))
		}
		t.Status = st
	}
	if due, ok := importer.ParseDate(rec.Get("due_date", "due", "deadline")); ok {
		t.DueDate = &due
	}
	var assignees []string
	for _, email := range importer.SplitList(rec.Get("assignees", "assignee_emails", "assigned_to", "assignee", "emails")) {
		id, ok := byEmail[account.NormalizeEmail(email)]
		if !ok {
			return row, apperr.Invalid(fmt.Sprintf("Assignee not found in organization: %s", email))
		}
		assignees = append(assignees, id)
	}

	created, err := s.store.Create(ctx, t, assignees)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalid) {
			return row, err
		}
		s.log.Error("bulk task import row failed", zap.Int("row", rec.Row), zap.Error(err))
		return row, errRowFailed
	}
	row.Task = created
	s.notifier.TaskCreated(ctx, actor, created)
	return row, nil
}
