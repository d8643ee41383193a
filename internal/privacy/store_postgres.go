package privacy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"sipcall-backend/internal/audit"
	"sipcall-backend/pkg/utils"

	"github.com/google/uuid"
)

// PostgresPurger erases an account inside a single transaction. The commit is
// all-or-nothing; a failure at any step leaves every table untouched.
type PostgresPurger struct {
	db *sql.DB
}

func NewPostgresPurger(db *sql.DB) *PostgresPurger {
	return &PostgresPurger{db: db}
}

func (p *PostgresPurger) PurgeUserData(ctx context.Context, req PurgeRequest) (PurgeResult, error) {
	var res PurgeResult

	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// The deletion request itself is audited before the purge so the
		// anonymization pass below covers it too.
		details, err := json.Marshal(map[string]any{"deletion_id": req.DeletionID})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, 'user', $2, $4, $5, $6, $7)`,
			uuid.NewString(), req.UserID, audit.ActionDeletionRequest, details,
			req.IPAddress, req.UserAgent, req.RequestedAt)
		if err != nil {
			return fmt.Errorf("record deletion request: %w", err)
		}

		r, err := tx.ExecContext(ctx,
			`DELETE FROM call_events WHERE call_id IN (SELECT id FROM calls WHERE user_id = $1)`,
			req.UserID)
		if err != nil {
			return fmt.Errorf("delete call events: %w", err)
		}
		n, _ := r.RowsAffected()
		res.EventsDeleted = int(n)

		r, err = tx.ExecContext(ctx, `DELETE FROM calls WHERE user_id = $1`, req.UserID)
		if err != nil {
			return fmt.Errorf("delete calls: %w", err)
		}
		n, _ = r.RowsAffected()
		res.CallsDeleted = int(n)

		marker, err := json.Marshal(audit.AnonymizationMarker{Anonymized: true, DeletionID: req.DeletionID})
		if err != nil {
			return err
		}
		r, err = tx.ExecContext(ctx,
			`UPDATE audit_logs SET user_id = NULL, details = $1 WHERE user_id = $2`,
			marker, req.UserID)
		if err != nil {
			return fmt.Errorf("anonymize audit trail: %w", err)
		}
		n, _ = r.RowsAffected()
		res.AuditAnonymized = int(n)

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, req.UserID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return PurgeResult{}, err
	}
	return res, nil
}
