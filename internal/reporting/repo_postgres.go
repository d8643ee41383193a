package reporting

import (
	"context"
	"database/sql"
	"time"

	"sipcall-backend/internal/calls"
)

// PostgresRepo reads call rows for aggregation. Encrypted columns are fetched
// but never decrypted here; reports carry no phone numbers.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListCallsInRange(ctx context.Context, from, to time.Time) ([]calls.Call, error) {
	const q = `
SELECT id, status, initiated_at, duration_seconds, cost_minor, currency, quality_score
FROM calls
WHERE initiated_at >= $1 AND initiated_at < $2
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		var duration sql.NullInt64
		var cost sql.NullInt64
		var quality sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Status, &c.InitiatedAt, &duration, &cost, &c.Currency, &quality); err != nil {
			return nil, err
		}
		if duration.Valid {
			d := int(duration.Int64)
			c.DurationSeconds = &d
		}
		if cost.Valid {
			v := cost.Int64
			c.CostMinor = &v
		}
		if quality.Valid {
			v := quality.Float64
			c.QualityScore = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
