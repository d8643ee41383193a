package reporting

import (
	"context"
	"errors"
	"time"

	"sipcall-backend/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations query call records directly; reporting never mutates.
type Repository interface {
	ListCallsInRange(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CallsSummary aggregates call outcomes, durations, cost and quality over the
// range.
func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return CallsSummary{}, ErrInvalidRequest
	}

	rows, err := s.repo.ListCallsInRange(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, TotalCostMinor: map[string]int64{}}
	var qualitySum float64
	var qualityCount int
	for _, c := range rows {
		out.TotalCalls++
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
		}
		if c.CostMinor != nil {
			out.TotalCostMinor[c.Currency] += *c.CostMinor
		}
		if c.QualityScore != nil {
			qualitySum += *c.QualityScore
			qualityCount++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusTerminated:
			out.TerminatedCalls++
		case calls.CallStatusCancelled:
			out.CancelledCalls++
		default:
			out.LiveCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if qualityCount > 0 {
		avg := qualitySum / float64(qualityCount)
		out.AverageQualityScore = &avg
	}
	return out, nil
}
