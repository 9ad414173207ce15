package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"taskflow.dev/internal/apperr"
	"taskflow.dev/internal/ids"
	"taskflow.dev/internal/store/pg"
)

const (
	constraintUsersEmail = "users_email_key"
	constraintOrgSlug    = "organizations_slug_key"
)

const userColumns = `id, first_name, coalesce(middle_name, ''), last_name, email, password_hash,
	coalesce(organization_id, ''), role, coalesce(invited_by, ''), created_at, updated_at`

// PGStore implements the account stores on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore                 { return &userStore{db: s.db} }
func (s *PGStore) Organizations() OrganizationStore { return &orgStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

var _ UserStore = (*userStore)(nil)

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return FindUserByEmail(ctx, s.db, email, false)
}

func (s *userStore) FindInOrg(ctx context.Context, orgID, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1 and organization_id = $2`, id, orgID))
}

func (s *userStore) ListByOrg(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization_id = $1 order by created_at asc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) CountInOrg(ctx context.Context, orgID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from users where organization_id = $1 and id = any($2)`,
		orgID, pq.Array(userIDs)).Scan(&n)
	return n, err
}

func (s *userStore) Register(ctx context.Context, u *User, org *Organization) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if org.ID == "" {
		org.ID = ids.New()
	}
	if org.Slug == "" {
		org.Slug = Slug(org.Name, now)
	}
	u.Role = RoleAdmin
	u.OrganizationID = ""

	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := InsertUser(ctx, tx, u); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			insert into organizations (id, name, slug, created_by)
			values ($1, $2, $3, $4)
			returning created_at, updated_at
		`, org.ID, org.Name, org.Slug, u.ID).Scan(&org.CreatedAt, &org.UpdatedAt); err != nil {
			if pg.IsUniqueViolation(err, constraintOrgSlug) {
				return apperr.Conflict("Organization slug already taken, please retry")
			}
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`update users set organization_id = $2, updated_at = now() where id = $1`, u.ID, org.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	org.CreatedBy = u.ID
	u.OrganizationID = org.ID
	return nil
}

func (s *userStore) Detach(ctx context.Context, orgID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set organization_id = null, role = 'member', updated_at = now()
		where id = $1 and organization_id = $2
	`, userID, orgID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *userStore) SetRole(ctx context.Context, orgID, userID string, role Role) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set role = $3, updated_at = now()
		where id = $1 and organization_id = $2
		returning `+userColumns, userID, orgID, string(role)))
}

// Organization store -------------------------------------------------------
type orgStore struct{ db *sql.DB }

var _ OrganizationStore = (*orgStore)(nil)

func (s *orgStore) Find(ctx context.Context, id string) (*Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx,
		`select id, name, slug, coalesce(created_by, ''), created_at, updated_at from organizations where id = $1`, id))
}

func (s *orgStore) Rename(ctx context.Context, id, name string) (*Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx, `
		update organizations set name = $2, updated_at = now() where id = $1
		returning id, name, slug, coalesce(created_by, ''), created_at, updated_at
	`, id, name))
}

// Helpers shared with stores that write users inside their own transactions.

// InsertUser inserts u, assigning an id when empty. A duplicate email yields ErrEmailTaken.
func InsertUser(ctx context.Context, q pg.Querier, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	u.Email = NormalizeEmail(u.Email)
	err := q.QueryRowContext(ctx, `
		insert into users (id, first_name, middle_name, last_name, email, password_hash, organization_id, role, invited_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, u.ID, u.FirstName, pg.NullString(u.MiddleName), u.LastName, u.Email, u.PasswordHash,
		pg.NullString(u.OrganizationID), string(u.Role), pg.NullString(u.InvitedBy),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if pg.IsUniqueViolation(err, constraintUsersEmail) {
		return ErrEmailTaken
	}
	return err
}

// FindUserByEmail looks a user up case-insensitively, optionally locking the row.
func FindUserByEmail(ctx context.Context, q pg.Querier, email string, forUpdate bool) (*User, error) {
	query := `select ` + userColumns + ` from users where lower(email) = $1`
	if forUpdate {
		query += ` for update`
	}
	return scanUser(q.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

// AttachUser moves an orgless user into orgID with the given role.
func AttachUser(ctx context.Context, q pg.Querier, u *User, orgID string, role Role, invitedBy string) error {
	res, err := q.ExecContext(ctx, `
		update users set organization_id = $2, role = $3, invited_by = $4, updated_at = now()
		where id = $1 and organization_id is null
	`, u.ID, orgID, string(role), pg.NullString(invitedBy))
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	u.OrganizationID = orgID
	u.Role = role
	u.InvitedBy = invitedBy
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.MiddleName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.OrganizationID, &role, &u.InvitedBy, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func scanOrg(row scanner) (*Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
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
