package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ifiasoft/erp-api/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore   { return &userStore{db: s.db} }
func (s *PGStore) Tokens() TokenStore { return &tokenStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, salutation, first_name, middle_name, last_name,
	is_active, is_admin, is_email_verified, verification_token, organization_id, role_id,
	created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, salutation, first_name, middle_name, last_name,
			is_active, is_admin, is_email_verified, verification_token, organization_id, role_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		u.ID, u.Email, u.PasswordHash, u.Salutation, u.FirstName, u.MiddleName, u.LastName,
		u.IsActive, u.IsAdmin, u.IsEmailVerified, nullString(u.VerificationToken),
		nullString(u.OrganizationID), nullString(u.RoleID),
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.findWhere(ctx, `id=$1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findWhere(ctx, `email=$1`, email)
}

func (s *userStore) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	return s.findWhere(ctx, `verification_token=$1`, token)
}

func (s *userStore) findWhere(ctx context.Context, cond string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+cond, arg)
	var (
		u                 User
		verificationToken sql.NullString
		organizationID    sql.NullString
		roleID            sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Salutation, &u.FirstName, &u.MiddleName,
		&u.LastName, &u.IsActive, &u.IsAdmin, &u.IsEmailVerified, &verificationToken,
		&organizationID, &roleID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.VerificationToken = verificationToken.String
	u.OrganizationID = organizationID.String
	u.RoleID = roleID.String
	return &u, nil
}

func (s *userStore) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_email_verified=true, verification_token=null, updated_at=now() where id=$1`,
		userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) UpdateProfile(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	// Explicit field-by-field merge; null arguments leave columns untouched.
	_, err := s.db.ExecContext(ctx,
		`update users set
			salutation  = coalesce($2, salutation),
			first_name  = coalesce($3, first_name),
			middle_name = coalesce($4, middle_name),
			last_name   = coalesce($5, last_name),
			updated_at  = now()
		 where id=$1`,
		userID, upd.Salutation, upd.FirstName, upd.MiddleName, upd.LastName)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, userID)
}

func (s *userStore) AssignOrganization(ctx context.Context, userID, orgID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set organization_id=$2, updated_at=now() where id=$1`, userID, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) Deactivate(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_active=false, updated_at=now() where id=$1`, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Token store --------------------------------------------------------------

type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Insert(ctx context.Context, recs ...TokenRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx,
			`insert into tokens(jti, token_type, user_id, revoked, expires_at) values($1,$2,$3,$4,$5)`,
			rec.JTI, rec.TokenType, rec.UserID, rec.Revoked, rec.ExpiresAt)
		if isUniqueViolation(err) {
			return ErrDuplicateJTI
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *tokenStore) FindActive(ctx context.Context, jti, tokenType string) (TokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, token_type, user_id, revoked, expires_at, created_at from tokens
		 where jti=$1 and token_type=$2 and revoked=false and expires_at > now()`,
		jti, tokenType)
	var rec TokenRecord
	err := row.Scan(&rec.JTI, &rec.TokenType, &rec.UserID, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenRecord{}, ErrNotFound
		}
		return TokenRecord{}, err
	}
	return rec, nil
}

func (s *tokenStore) Consume(ctx context.Context, jti, tokenType string) (string, error) {
	// Single conditional update: two concurrent rotations of the same jti
	// race on revoked=false, so only one can see an affected row.
	row := s.db.QueryRowContext(ctx,
		`update tokens set revoked=true
		 where jti=$1 and token_type=$2 and revoked=false and expires_at > now()
		 returning user_id`,
		jti, tokenType)
	var userID string
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *tokenStore) Revoke(ctx context.Context, jti string) error {
	_, err := s.db.ExecContext(ctx, `update tokens set revoked=true where jti=$1`, jti)
	return err
}

func (s *tokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update tokens set revoked=true where user_id=$1 and revoked=false and expires_at > now()`,
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
