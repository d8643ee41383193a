package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for calls and their events.
//
// Atomicity contract for UpdateStatus: the transition check and the write are
// one atomic step with respect to concurrent updates to the same call. Two
// racing forward transitions into different terminal states must resolve to
// exactly one winner; the loser observes Applied=false, never an error.
type Repository interface {
	// Create persists a new call. A reused switch handle fails with
	// ErrDuplicateHandle.
	Create(ctx context.Context, c Call) error

	// Get returns a call by id regardless of owner. Callers enforce ownership.
	Get(ctx context.Context, id string) (Call, error)

	// GetOwned returns the call only when it belongs to userID;
	// ErrNotFound otherwise (ownership is not leaked as a distinct error).
	GetOwned(ctx context.Context, id, userID string) (Call, error)

	// GetByHandle resolves the switch handle to the call; webhook path.
	GetByHandle(ctx context.Context, handle string) (Call, error)

	// UpdateStatus applies newStatus with the accompanying fields if the
	// forward-only rule allows it. An illegal or terminal-repeat transition is
	// reported as Applied=false with the current row returned.
	UpdateStatus(ctx context.Context, id string, newStatus CallStatus, fields StatusFields) (StatusUpdate, error)

	// ListByUser returns a page of the user's calls, newest first, and the
	// total matching count.
	ListByUser(ctx context.Context, userID string, f ListFilter, p Page) ([]Call, int, error)

	// AppendEvent records an immutable call event.
	AppendEvent(ctx context.Context, e CallEvent) error

	// ListEvents returns events for a call in append order.
	ListEvents(ctx context.Context, callID string) ([]CallEvent, error)
}

// StatusFields carries the columns written together with a status change.
// Terminal writes set EndedAt and DurationSeconds as one unit.
type StatusFields struct {
	Now              time.Time
	AnsweredAt       *time.Time
	EndedAt          *time.Time
	DurationSeconds  *int
	QualityScore     *float64
	DisconnectReason string

	// CostMinor/Currency are set when the terminal call was rated.
	CostMinor *int64
	Currency  string
}

// StatusUpdate reports the outcome of an UpdateStatus attempt.
type StatusUpdate struct {
	Applied bool
	Call    Call
}

// ListFilter narrows ListByUser by initiation date range. Zero bounds are
// open-ended.
type ListFilter struct {
	From time.Time
	To   time.Time
}

// Page is offset/limit pagination. HasMore is computed by the caller as
// offset+limit < total.
type Page struct {
	Offset int
	Limit  int
}
