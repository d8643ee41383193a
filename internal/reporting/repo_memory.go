package reporting

import (
	"context"
	"time"

	"sipcall-backend/internal/calls"
)

// MemoryRepo serves reports from a fixed slice; tests only.
type MemoryRepo struct {
	Calls []calls.Call
}

func (r *MemoryRepo) ListCallsInRange(ctx context.Context, from, to time.Time) ([]calls.Call, error) {
	_ = ctx
	var out []calls.Call
	for _, c := range r.Calls {
		if c.InitiatedAt.Before(from) || !c.InitiatedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
