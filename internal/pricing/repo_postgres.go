package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads rates from the call_rates table.
//
// Schema:
//
//	CREATE TABLE call_rates (
//	    id                        UUID PRIMARY KEY,
//	    prefix                    TEXT NOT NULL,
//	    currency                  TEXT NOT NULL,
//	    rate_per_minute_minor     BIGINT NOT NULL,
//	    billing_increment_seconds INT NOT NULL DEFAULT 60,
//	    minimum_billable_seconds  INT NOT NULL DEFAULT 0,
//	    effective_from            TIMESTAMPTZ NOT NULL,
//	    effective_to              TIMESTAMPTZ,
//	    status                    TEXT NOT NULL,
//	    created_at                TIMESTAMPTZ NOT NULL,
//	    updated_at                TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindRate(ctx context.Context, digits string, at time.Time) (Rate, bool, error) {
	// Longest prefix wins; ties resolve to the most recent effective row.
	const q = `
SELECT id, prefix, currency, rate_per_minute_minor, billing_increment_seconds,
       minimum_billable_seconds, effective_from, effective_to, status, created_at, updated_at
FROM call_rates
WHERE status = 'active'
  AND $1 LIKE prefix || '%'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY length(prefix) DESC, effective_from DESC
LIMIT 1
`
	var p Rate
	var effectiveTo sql.NullTime
	err := r.db.QueryRowContext(ctx, q, digits, at).Scan(
		&p.ID,
		&p.Prefix,
		&p.Currency,
		&p.RatePerMinuteMinor,
		&p.BillingIncrementSeconds,
		&p.MinimumBillableSeconds,
		&p.EffectiveFrom,
		&effectiveTo,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	if effectiveTo.Valid {
		p.EffectiveTo = &effectiveTo.Time
	}
	return p, true, nil
}
