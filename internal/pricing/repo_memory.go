package pricing

import (
	"context"
	"strings"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// NOTE: This is not intended for production; replace with Postgres implementation.
type MemoryRepo struct {
	Rates []Rate
}

func (r *MemoryRepo) FindRate(ctx context.Context, digits string, at time.Time) (Rate, bool, error) {
	_ = ctx

	// Longest prefix wins; ties resolve to the most recent effective row.
	var best Rate
	found := false

	for _, p := range r.Rates {
		if p.Status != RateStatusActive {
			continue
		}
		if !strings.HasPrefix(digits, p.Prefix) {
			continue
		}
		if at.Before(p.EffectiveFrom) {
			continue
		}
		if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
			continue
		}

		if !found ||
			len(p.Prefix) > len(best.Prefix) ||
			(len(p.Prefix) == len(best.Prefix) && p.EffectiveFrom.After(best.EffectiveFrom)) {
			best = p
			found = true
		}
	}

	return best, found, nil
}
