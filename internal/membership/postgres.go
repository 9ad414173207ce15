package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/store/pg"
)

const (
	constraintPendingEmail = "invites_pending_email_key"
	constraintToken        = "invites_token_key"
)

const selectInvite = `
	select i.id, i.email, i.organization_id, i.token, coalesce(i.invited_by, ''), i.accepted, i.expires_at,
		i.created_at, i.updated_at, o.name,
		coalesce(u.first_name, ''), coalesce(u.middle_name, ''), coalesce(u.last_name, ''), coalesce(u.email, '')
	from invites i
	join organizations o on o.id = i.organization_id
	left join users u on u.id = i.invited_by`

// PGStore implements Store on PostgreSQL. Open-invite uniqueness is enforced by the
// invites_pending_email_key partial index, not by a read before the write.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateInvite(ctx context.Context, inv *Invite, now time.Time) error {
	inv.Email = account.NormalizeEmail(inv.Email)
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			delete from invites
			where organization_id = $1 and lower(email) = $2 and not accepted and expires_at <= $3
		`, inv.OrganizationID, inv.Email, now); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			insert into invites (id, email, organization_id, token, invited_by, expires_at)
			values ($1, $2, $3, $4, $5, $6)
			returning created_at, updated_at
		`, inv.ID, inv.Email, inv.OrganizationID, inv.Token, pg.NullString(inv.InvitedBy), inv.ExpiresAt,
		).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	})
	switch {
	case pg.IsUniqueViolation(err, constraintPendingEmail):
		return ErrAlreadyInvited
	case pg.IsUniqueViolation(err, constraintToken):
		return errors.New("membership: invite token collision")
	}
	return err
}

func (s *PGStore) ListInvites(ctx context.Context, orgID string) ([]*Invite, error) {
	rows, err := s.db.QueryContext(ctx, selectInvite+`
		where i.organization_id = $1
		order by i.created_at desc, i.id desc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (s *PGStore) FindInvite(ctx context.Context, orgID, id string) (*Invite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, selectInvite+` where i.id = $1 and i.organization_id = $2`, id, orgID))
}

func (s *PGStore) FindInviteByToken(ctx context.Context, token string) (*Invite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, selectInvite+` where i.token = $1`, token))
}

func (s *PGStore) ExtendInvite(ctx context.Context, orgID, id string, expiresAt time.Time) (*Invite, error) {
	res, err := s.db.ExecContext(ctx, `
		update invites set expires_at = $3, updated_at = now()
		where id = $1 and organization_id = $2 and not accepted
	`, id, orgID, expiresAt)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	inv, err := s.FindInvite(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if n == 0 && inv.Accepted {
		return nil, ErrInviteAccepted
	}
	return inv, nil
}

func (s *PGStore) DeleteInvite(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from invites where id = $1 and organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteNotFound
	}
	return nil
}

func (s *PGStore) AcceptInvite(ctx context.Context, token string, now time.Time, newUser *account.User) (*account.User, bool, error) {
	var (
		user   *account.User
		joined bool
	)
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		inv := &Invite{}
		var invitedBy string
		err := tx.QueryRowContext(ctx, `
			select id, email, organization_id, coalesce(invited_by, ''), accepted, expires_at
			from invites where token = $1 for update
		`, token).Scan(&inv.ID, &inv.Email, &inv.OrganizationID, &invitedBy, &inv.Accepted, &inv.ExpiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInviteNotFound
		}
		if err != nil {
			return err
		}
		if err := inv.usable(now); err != nil {
			return err
		}

		existing, err := account.FindUserByEmail(ctx, tx, inv.Email, true)
		switch {
		case errors.Is(err, account.ErrNotFound):
			newUser.Email = inv.Email
			newUser.OrganizationID = inv.OrganizationID
			newUser.Role = account.RoleMember
			newUser.InvitedBy = invitedBy
			if err := account.InsertUser(ctx, tx, newUser); err != nil {
				return err
			}
			user = newUser
		case err != nil:
			return err
		case existing.OrganizationID == inv.OrganizationID:
			return ErrAlreadyMember
		case existing.HasOrganization():
			return ErrEmailInOtherOrg
		default:
			if err := account.AttachUser(ctx, tx, existing, inv.OrganizationID, account.RoleMember, invitedBy); err != nil {
				return err
			}
			user, joined = existing, true
		}

		res, err := tx.ExecContext(ctx,
			`update invites set accepted = true, updated_at = now() where id = $1 and not accepted`, inv.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrInviteAccepted
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, joined, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvite(row scanner) (*Invite, error) {
	var (
		inv                        Invite
		orgName                    string
		first, middle, last, email string
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.OrganizationID, &inv.Token, &inv.InvitedBy, &inv.Accepted,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt, &orgName, &first, &middle, &last, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Organization = &OrganizationRef{ID: inv.OrganizationID, Name: orgName}
	if inv.InvitedBy != "" && email != "" {
		s := account.NewSummary(inv.InvitedBy, first, middle, last, email)
		inv.Inviter = &s
	}
	return &inv, nil
}
