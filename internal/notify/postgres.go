package notify

import (
	"context"
	"database/sql"
	"errors"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/store/pg"
)

const selectNotification = `
	select n.id, n.user_id, n.organization_id, n.type, n.title, n.message, n.read, n.task_id, n.actor_id,
		n.created_at, n.updated_at,
		coalesce(a.first_name, ''), coalesce(a.middle_name, ''), coalesce(a.last_name, ''), coalesce(a.email, ''),
		coalesce(t.title, ''), coalesce(t.status, '')
	from notifications n
	left join users a on a.id = n.actor_id
	left join tasks t on t.id = n.task_id`

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, n *Notification) error {
	return s.db.QueryRowContext(ctx, `
		insert into notifications (id, user_id, organization_id, type, title, message, task_id, actor_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning read, created_at, updated_at
	`, n.ID, n.UserID, n.OrganizationID, string(n.Type), n.Title, n.Message,
		nullable(n.TaskID), nullable(n.ActorID)).Scan(&n.Read, &n.CreatedAt, &n.UpdatedAt)
}

func (s *PGStore) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}
	q := selectNotification + ` where n.user_id = $1`
	if unreadOnly {
		q += ` and not n.read`
	}
	q += ` order by n.created_at desc, n.id desc limit $2`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *PGStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from notifications where user_id = $1 and not read`, userID).Scan(&n)
	return n, err
}

func (s *PGStore) MarkRead(ctx context.Context, userID, id string) (*Notification, error) {
	res, err := s.db.ExecContext(ctx,
		`update notifications set read = true, updated_at = now() where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if err := expectOne(res); err != nil {
		return nil, err
	}
	return scanNotification(s.db.QueryRowContext(ctx, selectNotification+` where n.id = $1 and n.user_id = $2`, id, userID))
}

func (s *PGStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update notifications set read = true, updated_at = now() where user_id = $1 and not read`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from notifications where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from notifications where user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*Notification, error) {
	var (
		n                          Notification
		typ                        string
		taskID, actorID            sql.NullString
		first, middle, last, email string
		taskTitle, taskStatus      string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.OrganizationID, &typ, &n.Title, &n.Message, &n.Read, &taskID, &actorID,
		&n.CreatedAt, &n.UpdatedAt, &first, &middle, &last, &email, &taskTitle, &taskStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	if actorID.Valid {
		n.ActorID = &actorID.String
		if email != "" {
			a := account.NewSummary(actorID.String, first, middle, last, email)
			n.Actor = &a
		}
	}
	if taskID.Valid {
		n.TaskID = &taskID.String
		n.Task = &TaskRef{ID: taskID.String, Title: taskTitle, Status: taskStatus}
	}
	return &n, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return pg.NullString(*s)
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
