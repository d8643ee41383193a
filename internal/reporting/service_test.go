package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"sipcall-backend/internal/calls"
)

func intp(v int) *int { return &v }

func int64p(v int64) *int64 { return &v }

func floatp(v float64) *float64 { return &v }

func TestCallsSummary(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &MemoryRepo{Calls: []calls.Call{
		{ID: "c1", Status: calls.CallStatusCompleted, InitiatedAt: now.Add(time.Minute),
			DurationSeconds: intp(60), CostMinor: int64p(100), Currency: "USD", QualityScore: floatp(4.0)},
		{ID: "c2", Status: calls.CallStatusCompleted, InitiatedAt: now.Add(2 * time.Minute),
			DurationSeconds: intp(120), CostMinor: int64p(200), Currency: "USD", QualityScore: floatp(3.0)},
		{ID: "c3", Status: calls.CallStatusFailed, InitiatedAt: now.Add(3 * time.Minute)},
		{ID: "c4", Status: calls.CallStatusRinging, InitiatedAt: now.Add(4 * time.Minute)},
		// Outside the range.
		{ID: "c5", Status: calls.CallStatusCompleted, InitiatedAt: now.Add(-time.Hour)},
	}}
	svc := NewService(repo)

	sum, err := svc.CallsSummary(context.Background(), TimeRange{From: now, To: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalCalls != 4 || sum.CompletedCalls != 2 || sum.FailedCalls != 1 || sum.LiveCalls != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.TotalDurationSeconds != 180 || sum.AverageDurationSeconds != 45 {
		t.Fatalf("unexpected durations: total=%d avg=%d", sum.TotalDurationSeconds, sum.AverageDurationSeconds)
	}
	if sum.TotalCostMinor["USD"] != 300 {
		t.Fatalf("unexpected cost: %v", sum.TotalCostMinor)
	}
	if sum.AverageQualityScore == nil || *sum.AverageQualityScore != 3.5 {
		t.Fatalf("unexpected quality: %v", sum.AverageQualityScore)
	}
}

func TestCallsSummaryInvalidRange(t *testing.T) {
	svc := NewService(&MemoryRepo{})
	now := time.Now()
	if _, err := svc.CallsSummary(context.Background(), TimeRange{From: now, To: now}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.CallsSummary(context.Background(), TimeRange{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}
