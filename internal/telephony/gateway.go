package telephony

import "context"

// Gateway is the switch-agnostic call-control interface used by business logic.
//
// Rules:
// - No switch protocol details outside this package.
// - The core treats the gateway as an unreliable remote service: every method
//   takes a context and callers bound it with a deadline.
// - Request/response types stay switch-agnostic; raw protocol payloads belong
//   in adapter internals.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Originate asks the switch to place an outbound call. On success the
	// result carries the switch-assigned call handle.
	Originate(ctx context.Context, destination, callerID string) (OriginateResult, error)

	// Hangup tears down the call identified by handle.
	Hangup(ctx context.Context, handle string) (HangupResult, error)

	// GetStatus queries the switch-reported state of the call.
	GetStatus(ctx context.Context, handle string) (StatusResult, error)

	// Hold and Mute toggle in-call media states.
	Hold(ctx context.Context, handle string, hold bool) error
	Mute(ctx context.Context, handle string, mute bool) error
}

type OriginateResult struct {
	OK     bool   `json:"ok"`
	Handle string `json:"handle,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type HangupResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Status is the switch-reported call state, before reconciliation against
// locally tracked state.
type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

type StatusResult struct {
	Status          Status   `json:"status"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	QualityScore    *float64 `json:"quality_score,omitempty"`
}
