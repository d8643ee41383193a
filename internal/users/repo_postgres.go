package users

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists users in the users table:
//
//	users(id UUID PK, subject_id TEXT UNIQUE, email TEXT, display_name TEXT,
//	      can_call BOOL, is_admin BOOL,
//	      privacy_consent BOOL, privacy_consent_date TIMESTAMPTZ NULL,
//	      created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ, last_login TIMESTAMPTZ NULL)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const userColumns = `
id, subject_id, email, display_name, can_call, is_admin,
privacy_consent, privacy_consent_date, created_at, updated_at, last_login`

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetBySubject(ctx context.Context, subjectID string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE subject_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, q, subjectID))
}

func (r *PostgresRepo) Create(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		u.ID,
		u.SubjectID,
		u.Email,
		u.DisplayName,
		u.Capabilities.CanCall,
		u.Capabilities.IsAdmin,
		u.PrivacyConsent,
		u.PrivacyConsentDate,
		u.CreatedAt,
		u.UpdatedAt,
		u.LastLogin,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, u User) error {
	const q = `
UPDATE users
SET email = $2, display_name = $3, can_call = $4, is_admin = $5,
    privacy_consent = $6, privacy_consent_date = $7, updated_at = $8, last_login = $9
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		u.ID,
		u.Email,
		u.DisplayName,
		u.Capabilities.CanCall,
		u.Capabilities.IsAdmin,
		u.PrivacyConsent,
		u.PrivacyConsentDate,
		u.UpdatedAt,
		u.LastLogin,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.SubjectID,
		&u.Email,
		&u.DisplayName,
		&u.Capabilities.CanCall,
		&u.Capabilities.IsAdmin,
		&u.PrivacyConsent,
		&u.PrivacyConsentDate,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
