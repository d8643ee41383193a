package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"sipcall-backend/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo persists calls and call events.
//
// Assumed tables:
//   - calls(id UUID PK, user_id UUID, destination_enc BYTEA, caller_id_enc BYTEA,
//     call_uuid TEXT UNIQUE NULL, status TEXT, direction TEXT,
//     initiated_at TIMESTAMPTZ, answered_at TIMESTAMPTZ NULL, ended_at TIMESTAMPTZ NULL,
//     duration_seconds INT NULL, cost_minor BIGINT NULL, currency TEXT,
//     quality_score DOUBLE PRECISION NULL, disconnect_reason TEXT,
//     created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ, version BIGINT)
//   - call_events(id UUID PK, call_id UUID REFERENCES calls(id), event_type TEXT,
//     payload JSONB NULL, created_at TIMESTAMPTZ)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `
id, user_id, destination_enc, caller_id_enc, call_uuid, status, direction,
initiated_at, answered_at, ended_at, duration_seconds, cost_minor, currency,
quality_score, disconnect_reason, created_at, updated_at, version`

const pgUniqueViolation = "23505"

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.UserID,
		c.DestinationEnc,
		c.CallerIDEnc,
		c.Handle,
		c.Status,
		c.Direction,
		c.InitiatedAt,
		c.AnsweredAt,
		c.EndedAt,
		c.DurationSeconds,
		c.CostMinor,
		c.Currency,
		c.QualityScore,
		c.DisconnectReason,
		c.CreatedAt,
		c.UpdatedAt,
		c.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateHandle
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetOwned(ctx context.Context, id, userID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1 AND user_id = $2`
	return scanCall(r.db.QueryRowContext(ctx, q, id, userID))
}

func (r *PostgresRepo) GetByHandle(ctx context.Context, handle string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE call_uuid = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, handle))
}

// UpdateStatus locks the call row, re-checks the forward-only rule under the
// lock, and writes the transition with its companion fields in one
// transaction. Concurrent reconciliation attempts serialize on the row lock;
// the second one re-reads a terminal state and becomes a no-op.
func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, newStatus CallStatus, fields StatusFields) (StatusUpdate, error) {
	var out StatusUpdate

	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const lockQ = `SELECT ` + callColumns + ` FROM calls WHERE id = $1 FOR UPDATE`
		cur, err := scanCall(tx.QueryRowContext(ctx, lockQ, id))
		if err != nil {
			return err
		}

		if !CanTransition(cur.Status, newStatus) {
			out = StatusUpdate{Applied: false, Call: cur}
			return nil
		}

		cur.Status = newStatus
		cur.UpdatedAt = fields.Now
		if fields.AnsweredAt != nil && cur.AnsweredAt == nil {
			cur.AnsweredAt = fields.AnsweredAt
		}
		if newStatus.IsTerminal() {
			cur.EndedAt = fields.EndedAt
			cur.DurationSeconds = fields.DurationSeconds
			if fields.QualityScore != nil {
				cur.QualityScore = fields.QualityScore
			}
			if fields.DisconnectReason != "" {
				cur.DisconnectReason = fields.DisconnectReason
			}
			if fields.CostMinor != nil {
				cur.CostMinor = fields.CostMinor
			}
			if fields.Currency != "" {
				cur.Currency = fields.Currency
			}
		}
		cur.Version++

		const updQ = `
UPDATE calls
SET status = $2, answered_at = $3, ended_at = $4, duration_seconds = $5,
    quality_score = $6, disconnect_reason = $7, cost_minor = $8, currency = $9,
    updated_at = $10, version = $11
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, updQ,
			cur.ID,
			cur.Status,
			cur.AnsweredAt,
			cur.EndedAt,
			cur.DurationSeconds,
			cur.QualityScore,
			cur.DisconnectReason,
			cur.CostMinor,
			cur.Currency,
			cur.UpdatedAt,
			cur.Version,
		); err != nil {
			return err
		}
		out = StatusUpdate{Applied: true, Call: cur}
		return nil
	})
	if err != nil {
		return StatusUpdate{}, err
	}
	return out, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, f ListFilter, p Page) ([]Call, int, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += ` AND initiated_at >= $2`
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		if len(args) == 3 {
			where += ` AND initiated_at <= $3`
		} else {
			where += ` AND initiated_at <= $2`
		}
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = total
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	// Offset and limit are ints; interpolation is injection-safe here.
	listQ := `SELECT ` + callColumns + ` FROM calls ` + where +
		` ORDER BY initiated_at DESC OFFSET ` + strconv.Itoa(p.Offset) + ` LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepo) AppendEvent(ctx context.Context, e CallEvent) error {
	const q = `
INSERT INTO call_events (id, call_id, event_type, payload, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.EventType, payload, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListEvents(ctx context.Context, callID string) ([]CallEvent, error) {
	const q = `
SELECT id, call_id, event_type, payload, created_at
FROM call_events
WHERE call_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		var e CallEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.CallID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCall(row interface{ Scan(dest ...any) error }) (Call, error) {
	var c Call
	var handle sql.NullString
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.DestinationEnc,
		&c.CallerIDEnc,
		&handle,
		&c.Status,
		&c.Direction,
		&c.InitiatedAt,
		&c.AnsweredAt,
		&c.EndedAt,
		&c.DurationSeconds,
		&c.CostMinor,
		&c.Currency,
		&c.QualityScore,
		&c.DisconnectReason,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.Handle = handle.String
	return c, nil
}
