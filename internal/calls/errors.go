package calls

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds per the call-control taxonomy. Handlers map these to transport
// codes; nothing here is retried by the core.
var (
	ErrNotFound           = errors.New("calls: not found")
	ErrInvalidDestination = errors.New("calls: invalid destination number")
	ErrInvalidArgument    = errors.New("calls: invalid argument")
	ErrPermissionDenied   = errors.New("calls: permission denied")
	ErrDuplicateHandle    = errors.New("calls: call handle already exists")
	ErrAlreadyTerminated  = errors.New("calls: call is already terminated")
	ErrGatewayUnavailable = errors.New("calls: switch gateway unavailable")
)

// RateLimitedError carries enough to compute a retry-after at the boundary.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("calls: rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// OriginationFailedError surfaces the gateway's rejection reason. The attempt
// itself is durably recorded as a cancelled call before this is returned.
type OriginationFailedError struct {
	Reason string
}

func (e *OriginationFailedError) Error() string {
	if e.Reason == "" {
		return "calls: call origination failed"
	}
	return "calls: call origination failed: " + e.Reason
}
