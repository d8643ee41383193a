package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetBySubject(ctx context.Context, subjectID string) (User, error)
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
}

var (
	ErrNotFound        = errors.New("users: not found")
	ErrInvalidArgument = errors.New("users: invalid argument")
)

// Service provisions and mutates users. Account deletion lives in
// internal/privacy because it spans calls and audit rows atomically.
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

// ProvisionLogin upserts the user for an authenticated subject: first login
// creates the record with default capabilities, later logins refresh profile
// fields and LastLogin.
func (s *Service) ProvisionLogin(ctx context.Context, subjectID, email, displayName string) (User, error) {
	if subjectID == "" {
		return User{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	u, err := s.repo.GetBySubject(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		u = User{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Email:        email,
			DisplayName:  displayName,
			Capabilities: DefaultCapabilities(),
			CreatedAt:    now,
			UpdatedAt:    now,
			LastLogin:    &now,
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return User{}, err
		}
		return u, nil
	}
	if err != nil {
		return User{}, err
	}

	if email != "" {
		u.Email = email
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	u.LastLogin = &now
	u.UpdatedAt = now
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Get returns the user by internal id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateConsent sets the privacy consent flag and stamps the change.
func (s *Service) UpdateConsent(ctx context.Context, id string, consent bool) (User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	now := s.clock().UTC()
	u.PrivacyConsent = consent
	u.PrivacyConsentDate = &now
	u.UpdatedAt = now
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}
