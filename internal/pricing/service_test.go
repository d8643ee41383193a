package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBillableSeconds(t *testing.T) {
	// 60s increment, 0 min
	if got := billableSeconds(1, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(60, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(61, 0, 60); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}

	// min billable seconds
	if got := billableSeconds(5, 30, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
}

func TestBillableMinutesFromSeconds(t *testing.T) {
	if got := billableMinutesFromSeconds(1); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(60); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(61); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestPriceCallLongestPrefixWins(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &MemoryRepo{Rates: []Rate{
		{ID: "r1", Prefix: "1", Currency: "USD", RatePerMinuteMinor: 100, Status: RateStatusActive, EffectiveFrom: now.Add(-time.Hour)},
		{ID: "r2", Prefix: "1415", Currency: "USD", RatePerMinuteMinor: 50, Status: RateStatusActive, EffectiveFrom: now.Add(-time.Hour)},
	}}
	svc := NewService(repo)

	cost, err := svc.PriceCall(context.Background(), "+14155551234", 90, now)
	if err != nil {
		t.Fatalf("PriceCall: %v", err)
	}
	if cost.Prefix != "1415" {
		t.Fatalf("prefix = %q, want 1415", cost.Prefix)
	}
	// 90s at 60s increments is 2 billable minutes at the 1415 rate.
	if cost.TotalMinor != 100 || cost.BillableMinutes != 2 {
		t.Fatalf("total = %d minutes = %d, want 100 and 2", cost.TotalMinor, cost.BillableMinutes)
	}
}

func TestPriceCallNoRate(t *testing.T) {
	svc := NewService(&MemoryRepo{})
	if _, err := svc.PriceCall(context.Background(), "+14155551234", 60, time.Now()); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("err = %v, want ErrRateNotFound", err)
	}
}

func TestPriceCallRejectsBadInput(t *testing.T) {
	svc := NewService(&MemoryRepo{})
	if _, err := svc.PriceCall(context.Background(), "", 60, time.Now()); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("err = %v, want ErrInvalidPricingReq", err)
	}
	if _, err := svc.PriceCall(context.Background(), "+14155551234", 0, time.Now()); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("err = %v, want ErrInvalidPricingReq", err)
	}
}

func TestPriceCallExpiredRate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	repo := &MemoryRepo{Rates: []Rate{
		{ID: "r1", Prefix: "1", Currency: "USD", RatePerMinuteMinor: 100, Status: RateStatusActive,
			EffectiveFrom: now.Add(-time.Hour), EffectiveTo: &past},
	}}
	svc := NewService(repo)
	if _, err := svc.PriceCall(context.Background(), "+14155551234", 60, now); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("err = %v, want ErrRateNotFound", err)
	}
}
