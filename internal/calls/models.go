package calls

import (
	"encoding/json"
	"time"
)

// Call represents one outbound call attempt.
//
// PII invariant: DestinationEnc and CallerIDEnc are ciphertext produced by
// internal/encryption. Plaintext numbers never reach storage and never appear
// in event payloads; only masked forms do.
//
// State invariant: Status only moves forward per CanTransition. EndedAt and
// DurationSeconds are set together, exactly once, on reaching a terminal
// status. Handle, once assigned by the switch, never changes.
type Call struct {
	ID     string `json:"call_id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	DestinationEnc []byte `json:"-" db:"destination_enc"`
	CallerIDEnc    []byte `json:"-" db:"caller_id_enc"`

	// Handle is the switch-assigned call identifier, distinct from ID.
	Handle string `json:"call_uuid,omitempty" db:"call_uuid"`

	Status    CallStatus `json:"status" db:"status"`
	Direction Direction  `json:"direction" db:"direction"`

	InitiatedAt time.Time  `json:"initiated_at" db:"initiated_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	CostMinor *int64 `json:"cost_minor,omitempty" db:"cost_minor"`
	Currency  string `json:"currency" db:"currency"`

	QualityScore     *float64 `json:"quality_score,omitempty" db:"quality_score"`
	DisconnectReason string   `json:"disconnect_reason,omitempty" db:"disconnect_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Version increments on every status write; the optimistic check behind
	// concurrent reconciliation.
	Version int64 `json:"-" db:"version"`
}

type Direction string

const DirectionOutbound Direction = "outbound"

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusTerminated CallStatus = "terminated"
	CallStatusCancelled  CallStatus = "cancelled"
)

// statusRank orders the success path; terminal states share no rank because
// transitions into them are governed by IsTerminal checks, not ordering.
var statusRank = map[CallStatus]int{
	CallStatusInitiated: 0,
	CallStatusRinging:   1,
	CallStatusAnswered:  2,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusTerminated, CallStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s CallStatus) Valid() bool {
	if s.IsTerminal() {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether from -> to is a permitted forward transition.
//
// Rules:
//   - initiated -> ringing -> answered -> completed (skipping states is allowed)
//   - initiated|ringing|answered -> failed
//   - any non-terminal -> terminated (user hangup)
//   - nothing leaves a terminal state
//   - repeating the current state is not a transition
func CanTransition(from, to CallStatus) bool {
	if from.IsTerminal() || from == to || !to.Valid() {
		return false
	}
	if to.IsTerminal() {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// CallEvent is an immutable fact appended whenever the lifecycle manager
// observes a transition. Deleted only when account erasure cascades through
// the parent call.
type CallEvent struct {
	ID        string          `json:"id" db:"id"`
	CallID    string          `json:"call_id" db:"call_id"`
	EventType string          `json:"event_type" db:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Event type tags written by the lifecycle manager.
const (
	EventInitiated         = "initiated"
	EventStatusChanged     = "status_changed"
	EventHangupRequested   = "hangup_requested"
	EventOriginationFailed = "origination_failed"
	EventHold              = "hold"
	EventMute              = "mute"
)
