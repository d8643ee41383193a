package privacy

import (
	"context"
	"log/slog"
	"time"

	"sipcall-backend/internal/audit"
	"sipcall-backend/internal/calls"
	"sipcall-backend/internal/encryption"
	"sipcall-backend/internal/users"

	"github.com/google/uuid"
)

// Purger executes the account erasure as one logical unit: pre-deletion
// audit entry, call event deletion, call deletion, audit anonymization, user
// deletion. Implementations roll back entirely on any failure; partial
// deletion is never left visible.
type Purger interface {
	PurgeUserData(ctx context.Context, req PurgeRequest) (PurgeResult, error)
}

type PurgeRequest struct {
	UserID      string
	DeletionID  string
	IPAddress   string
	UserAgent   string
	RequestedAt time.Time
}

type PurgeResult struct {
	CallsDeleted    int
	EventsDeleted   int
	AuditAnonymized int
}

// Service implements GDPR export and erasure, composed from the call store,
// the audit trail and the encryption codec.
type Service struct {
	users  *users.Service
	calls  calls.Repository
	audit  *audit.Service
	codec  *encryption.Codec
	purger Purger
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(us *users.Service, cr calls.Repository, as *audit.Service, codec *encryption.Codec, purger Purger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:  us,
		calls:  cr,
		audit:  as,
		codec:  codec,
		purger: purger,
		log:    log,
		clock:  time.Now,
	}
}

// WithClock overrides the time source; tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

/* ===================== DATA EXPORT ===================== */

// Export is the composite personal-data snapshot.
type Export struct {
	User       users.User     `json:"user"`
	Calls      []ExportedCall `json:"calls"`
	ExportDate time.Time      `json:"export_date"`
}

// ExportedCall is one decrypted call record. DecryptError marks records whose
// ciphertext could not be opened; the export continues past them.
type ExportedCall struct {
	CallID            string           `json:"call_id"`
	DestinationNumber string           `json:"destination_number,omitempty"`
	CallerID          string           `json:"caller_id,omitempty"`
	DecryptError      bool             `json:"decrypt_error,omitempty"`
	Status            calls.CallStatus `json:"status"`
	Direction         calls.Direction  `json:"direction"`
	InitiatedAt       time.Time        `json:"initiated_at"`
	EndedAt           *time.Time       `json:"ended_at,omitempty"`
	DurationSeconds   *int             `json:"duration_seconds,omitempty"`
	CostMinor         *int64           `json:"cost_minor,omitempty"`
	Currency          string           `json:"currency"`
	QualityScore      *float64         `json:"quality_score,omitempty"`
}

// ExportUserData gathers the user profile and every call, decrypting each
// record individually. A decrypt failure degrades that record to an error
// marker rather than aborting the export.
func (s *Service) ExportUserData(ctx context.Context, userID, ip, userAgent string) (Export, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Export{}, err
	}

	rows, _, err := s.calls.ListByUser(ctx, userID, calls.ListFilter{}, calls.Page{})
	if err != nil {
		return Export{}, err
	}

	exported := make([]ExportedCall, 0, len(rows))
	for _, c := range rows {
		ec := ExportedCall{
			CallID:          c.ID,
			Status:          c.Status,
			Direction:       c.Direction,
			InitiatedAt:     c.InitiatedAt,
			EndedAt:         c.EndedAt,
			DurationSeconds: c.DurationSeconds,
			CostMinor:       c.CostMinor,
			Currency:        c.Currency,
			QualityScore:    c.QualityScore,
		}
		dest, derr := s.codec.DecryptPhoneNumber(c.DestinationEnc)
		caller, cerr := s.codec.Decrypt(c.CallerIDEnc)
		if derr != nil || cerr != nil {
			s.log.Error("export decrypt failed", "call_id", c.ID)
			ec.DecryptError = true
		} else {
			ec.DestinationNumber = dest
			ec.CallerID = caller
		}
		exported = append(exported, ec)
	}

	if err := s.audit.LogDataExport(ctx, userID, ip, userAgent, len(exported)); err != nil {
		// Export still succeeds; losing the user's data over a failed audit
		// write would invert the priority.
		s.log.Error("export audit write failed", "user_id", userID, "err", err)
	}

	s.log.Info("data export completed", "user_id", userID, "calls", len(exported))
	return Export{User: u, Calls: exported, ExportDate: s.clock().UTC()}, nil
}

/* ===================== ACCOUNT DELETION ===================== */

// Deletion confirms a completed erasure.
type Deletion struct {
	DeletionID  string    `json:"deletion_id"`
	CompletedAt time.Time `json:"completed_at"`
	Calls       int       `json:"calls_deleted"`
}

// DeleteAccount erases the user and all dependent data as one logical unit.
// Any failure rolls the whole operation back.
func (s *Service) DeleteAccount(ctx context.Context, userID, ip, userAgent string) (Deletion, error) {
	if userID == "" {
		return Deletion{}, users.ErrInvalidArgument
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return Deletion{}, err
	}

	deletionID := "del_" + uuid.NewString()
	now := s.clock().UTC()

	res, err := s.purger.PurgeUserData(ctx, PurgeRequest{
		UserID:      userID,
		DeletionID:  deletionID,
		IPAddress:   ip,
		UserAgent:   userAgent,
		RequestedAt: now,
	})
	if err != nil {
		s.log.Error("account deletion failed", "user_id", userID, "deletion_id", deletionID, "err", err)
		return Deletion{}, err
	}

	s.log.Info("account deletion completed",
		"deletion_id", deletionID,
		"calls_deleted", res.CallsDeleted,
		"audit_anonymized", res.AuditAnonymized)
	return Deletion{DeletionID: deletionID, CompletedAt: now, Calls: res.CallsDeleted}, nil
}

/* ===================== CONSENT ===================== */

// UpdateConsent sets the consent flag and records the change in the audit
// trail.
func (s *Service) UpdateConsent(ctx context.Context, userID string, consent bool) (users.User, error) {
	u, err := s.users.UpdateConsent(ctx, userID, consent)
	if err != nil {
		return users.User{}, err
	}
	if err := s.audit.LogConsentChange(ctx, userID, consent); err != nil {
		s.log.Error("consent audit write failed", "user_id", userID, "err", err)
	}
	return u, nil
}
