package audit

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresRepo persists the audit trail:
//
//	audit_logs(id UUID PK, user_id UUID NULL, action TEXT, resource_type TEXT,
//	           resource_id TEXT, details JSONB NULL, ip_address TEXT,
//	           user_agent TEXT, created_at TIMESTAMPTZ)
//
// No DELETE is ever issued against this table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	var details any
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		details,
		e.IPAddress,
		e.UserAgent,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	const q = `
SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
FROM audit_logs
WHERE user_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Action,
			&e.ResourceType,
			&e.ResourceID,
			&details,
			&e.IPAddress,
			&e.UserAgent,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Details = details
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AnonymizeByUser(ctx context.Context, userID, deletionID string) (int, error) {
	marker, err := json.Marshal(AnonymizationMarker{Anonymized: true, DeletionID: deletionID})
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE audit_logs
SET user_id = NULL, details = $2
WHERE user_id = $1
`
	res, err := r.db.ExecContext(ctx, q, userID, marker)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
