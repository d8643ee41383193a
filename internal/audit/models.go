package audit

import (
	"encoding/json"
	"time"
)

// Entry is an immutable, append-only audit record for privacy-relevant
// actions.
//
// Invariants:
// - Entries are never updated or deleted; anonymization is the single
//   permitted mutation, and it preserves row count and timestamps.
// - UserID is nullable: account erasure clears it and replaces Details with
//   the anonymization marker.
//
// Storage recommendation (Postgres):
// - Table audit_logs with an INSERT-only policy plus the anonymization UPDATE.
// - Optional: partition by time for retention.
type Entry struct {
	ID string `json:"id" db:"id"`

	// UserID references the acting/affected user; nil after anonymization.
	UserID *string `json:"user_id,omitempty" db:"user_id"`

	Action       Action `json:"action" db:"action"`
	ResourceType string `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty" db:"resource_id"`

	// Details is a structured JSON payload.
	Details json.RawMessage `json:"details,omitempty" db:"details"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionDataExport      Action = "data_export"
	ActionDeletionRequest Action = "account_deletion_requested"
	ActionConsentUpdated  Action = "privacy_consent_updated"
	ActionLogin           Action = "user_login"
)

// AnonymizationMarker is the Details payload written by Anonymize. The
// deletion id correlates anonymized rows with the erasure request.
type AnonymizationMarker struct {
	Anonymized bool   `json:"anonymized"`
	DeletionID string `json:"deletion_id"`
}
