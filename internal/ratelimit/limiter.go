package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Store tracks admission attempts per key inside a sliding window.
//
// Admit must be atomic: counting the attempts inside [now-window, now) and
// appending the new attempt happen as one operation, so two concurrent
// requests cannot both squeeze into the last slot.
type Store interface {
	// Admit returns the number of attempts already in the window (excluding
	// this one) and whether the attempt was recorded. When the attempt is
	// rejected, oldest is the timestamp of the oldest attempt still counted,
	// so callers can compute a retry-after.
	Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int, allowed bool, oldest time.Time, err error)
}

// Limiter performs per-user, per-action admission checks.
//
// Policy: fixed limit per sliding window (default 5 call placements per
// minute per user). Attempts rejected earlier in the request path (e.g.,
// destination validation) never reach Admit, so they do not consume a slot.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	clock  func() time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, limit: limit, window: window, clock: time.Now}
}

// WithClock overrides the time source; tests only.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Admit checks and records one attempt for user+action. Window edges are
// inclusive at the start and exclusive at now, so an attempt exactly one
// window old no longer counts.
func (l *Limiter) Admit(ctx context.Context, userID, action string) (Decision, error) {
	if userID == "" || action == "" {
		return Decision{}, errors.New("ratelimit: user and action are required")
	}
	now := l.clock().UTC()
	key := "ratelimit:" + action + ":" + userID

	count, allowed, oldest, err := l.store.Admit(ctx, key, now, l.window, l.limit)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		retry := oldest.Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	remaining := l.limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Window exposes the configured window; used to describe the policy in
// rate-limit error responses.
func (l *Limiter) Window() time.Duration { return l.window }

// Limit exposes the configured attempt limit.
func (l *Limiter) Limit() int { return l.limit }
