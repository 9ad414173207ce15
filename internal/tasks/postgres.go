package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/store/pg"
)

const taskColumns = `t.id, t.title, coalesce(t.description, ''), t.status, t.due_date, coalesce(t.created_by, ''),
	t.organization_id, t.created_at, t.updated_at,
	coalesce(c.first_name, ''), coalesce(c.middle_name, ''), coalesce(c.last_name, ''), coalesce(c.email, '')`

const taskFrom = ` from tasks t left join users c on c.id = t.created_by`

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, t *Task, assigneeIDs []string) (*Task, error) {
	if t.ID == "" {
		t.ID = ids.New()
	}
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into tasks (id, title, description, status, due_date, created_by, organization_id)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.Title, pg.NullString(t.Description), string(t.Status), pg.NullTime(t.DueDate),
			t.CreatedBy, t.OrganizationID); err != nil {
			return err
		}
		return insertAssignees(ctx, tx, t.ID, t.OrganizationID, assigneeIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, t.OrganizationID, t.ID)
}

// insertAssignees links only users that belong to orgID. If any requested id is not a
// member at write time the row count falls short and the transaction is aborted.
func insertAssignees(ctx context.Context, q pg.Querier, taskID, orgID string, userIDs []string) error {
	userIDs = Dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil
	}
	res, err := q.ExecContext(ctx, `
		insert into task_assignees (task_id, user_id)
		select $1, u.id from users u
		where u.id = any($2) and u.organization_id = $3
		on conflict do nothing
	`, taskID, pq.Array(userIDs), orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(userIDs) {
		return ErrAssigneeNotMember
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, orgID, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`select `+taskColumns+taskFrom+` where t.id = $1 and t.organization_id = $2`, id, orgID))
	if err != nil {
		return nil, err
	}
	if err := s.loadAssignees(ctx, []*Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PGStore) List(ctx context.Context, orgID string, f Filter) ([]*Task, int, error) {
	f = f.Normalize()
	where := []string{"t.organization_id = $1"}
	args := []any{orgID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if f.AssigneeID != "" {
		args = append(args, f.AssigneeID)
		where = append(where, fmt.Sprintf(
			"exists (select 1 from task_assignees ta where ta.task_id = t.id and ta.user_id = $%d)", len(args)))
	}
	cond := " where " + strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from tasks t`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || f.Offset() >= total {
		return []*Task{}, total, nil
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := s.db.QueryContext(ctx, `select `+taskColumns+taskFrom+cond+
		fmt.Sprintf(` order by t.created_at desc, t.id desc limit $%d offset $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := s.loadAssignees(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *PGStore) Update(ctx context.Context, t *Task, assigneeIDs []string) (*Task, error) {
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update tasks set title = $3, description = $4, status = $5, due_date = $6,
				due_soon_notified_at = case when due_date is distinct from $6 then null else due_soon_notified_at end,
				updated_at = now()
			where id = $1 and organization_id = $2
		`, t.ID, t.OrganizationID, t.Title, pg.NullString(t.Description), string(t.Status), pg.NullTime(t.DueDate))
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		if assigneeIDs == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `delete from task_assignees where task_id = $1`, t.ID); err != nil {
			return err
		}
		return insertAssignees(ctx, tx, t.ID, t.OrganizationID, assigneeIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, t.OrganizationID, t.ID)
}

func (s *PGStore) Delete(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1 and organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) Stats(ctx context.Context, orgID string) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		select count(*),
			count(*) filter (where status = 'Pending'),
			count(*) filter (where status = 'In Progress'),
			count(*) filter (where status = 'Completed')
		from tasks where organization_id = $1
	`, orgID).Scan(&st.Total, &st.Pending, &st.InProgress, &st.Completed)
	return st, err
}

func (s *PGStore) DueSoon(ctx context.Context, from, until time.Time, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `select `+taskColumns+taskFrom+`
		where t.status <> 'Completed' and t.due_date is not null
			and t.due_date >= $1 and t.due_date <= $2 and t.due_soon_notified_at is null
		order by t.due_date asc limit $3`, from, until, limit)
	if err != nil {
		return nil, err
	}
	list, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadAssignees(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *PGStore) MarkDueSoonNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update tasks set due_soon_notified_at = $2 where id = $1`, id, at)
	return err
}

func (s *PGStore) loadAssignees(ctx context.Context, list []*Task) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*Task, len(list))
	taskIDs := make([]string, 0, len(list))
	for _, t := range list {
		t.Assignees = []account.Summary{}
		byID[t.ID] = t
		taskIDs = append(taskIDs, t.ID)
	}
	rows, err := s.db.QueryContext(ctx, `
		select ta.task_id, u.id, u.first_name, coalesce(u.middle_name, ''), u.last_name, u.email
		from task_assignees ta join users u on u.id = ta.user_id
		where ta.task_id = any($1)
		order by u.first_name, u.last_name, u.id
	`, pq.Array(taskIDs))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, id, first, middle, last, email string
		if err := rows.Scan(&taskID, &id, &first, &middle, &last, &email); err != nil {
			return err
		}
		if t := byID[taskID]; t != nil {
			t.Assignees = append(t.Assignees, account.NewSummary(id, first, middle, last, email))
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t                          Task
		status                     string
		due                        sql.NullTime
		first, middle, last, email string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &due, &t.CreatedBy, &t.OrganizationID,
		&t.CreatedAt, &t.UpdatedAt, &first, &middle, &last, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.DueDate = pg.TimePtr(due)
	if first != "" || email != "" {
		c := account.NewSummary(t.CreatedBy, first, middle, last, email)
		t.Creator = &c
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	defer rows.Close()
	var list []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
