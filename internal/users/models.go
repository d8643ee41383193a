package users

import "time"

// User is an account provisioned on first successful authentication against
// the external identity provider.
//
// Lifecycle:
// - Created on first login (SubjectID is the provider's stable subject).
// - Mutated on login (LastLogin) and consent change.
// - Hard-deleted on account-deletion request; related audit rows are
//   anonymized, not deleted.
type User struct {
	ID          string `json:"id" db:"id"`
	SubjectID   string `json:"subject_id" db:"subject_id"`
	Email       string `json:"email,omitempty" db:"email"`
	DisplayName string `json:"display_name,omitempty" db:"display_name"`

	Capabilities Capabilities `json:"capabilities"`

	PrivacyConsent     bool       `json:"privacy_consent" db:"privacy_consent"`
	PrivacyConsentDate *time.Time `json:"privacy_consent_date,omitempty" db:"privacy_consent_date"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// Capabilities is the enumerated permission set. Unknown capabilities do not
// exist: adding one means adding a field here and a column alongside it.
type Capabilities struct {
	CanCall bool `json:"can_call" db:"can_call"`
	IsAdmin bool `json:"is_admin" db:"is_admin"`
}

// DefaultCapabilities applies to newly provisioned users.
func DefaultCapabilities() Capabilities {
	return Capabilities{CanCall: true, IsAdmin: false}
}
