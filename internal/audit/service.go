package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the audit trail.
//
// Append-only, with exactly one sanctioned mutation: AnonymizeByUser, which
// detaches rows from an erased user without losing the compliance record.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByUser(ctx context.Context, userID string) ([]Entry, error)

	// AnonymizeByUser clears user_id and replaces details with the
	// anonymization marker on every row referencing userID. Returns the
	// number of rows rewritten.
	AnonymizeByUser(ctx context.Context, userID, deletionID string) (int, error)
}

// Service records privacy-relevant actions.
//
// Callers treat audit logging as best-effort for read paths (export still
// records, but a failed audit write must not lose a user's export); the
// deletion flow is the exception and runs its audit writes inside the purge
// transaction.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source; tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (s *Service) Record(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Action == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Anonymize(ctx context.Context, userID, deletionID string) (int, error) {
	if userID == "" || deletionID == "" {
		return 0, ErrInvalidEntry
	}
	return s.repo.AnonymizeByUser(ctx, userID, deletionID)
}

// LogDataExport records a completed personal-data export.
func (s *Service) LogDataExport(ctx context.Context, userID, ip, userAgent string, callCount int) error {
	details, _ := json.Marshal(map[string]any{"calls_exported": callCount})
	return s.Record(ctx, Entry{
		UserID:       &userID,
		Action:       ActionDataExport,
		ResourceType: "user_data",
		ResourceID:   userID,
		Details:      details,
		IPAddress:    ip,
		UserAgent:    userAgent,
	})
}

// LogConsentChange records a privacy consent toggle.
func (s *Service) LogConsentChange(ctx context.Context, userID string, consent bool) error {
	details, _ := json.Marshal(map[string]any{"consent": consent})
	return s.Record(ctx, Entry{
		UserID:       &userID,
		Action:       ActionConsentUpdated,
		ResourceType: "user_consent",
		ResourceID:   userID,
		Details:      details,
	})
}

// LogLogin records a successful authentication.
func (s *Service) LogLogin(ctx context.Context, userID, ip, userAgent string) error {
	return s.Record(ctx, Entry{
		UserID:       &userID,
		Action:       ActionLogin,
		ResourceType: "user_session",
		ResourceID:   userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
	})
}
