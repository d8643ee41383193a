package pricing

import (
	"context"
	"errors"
	"time"

	"sipcall-backend/internal/encryption"
)

// Service rates completed calls from destination-prefix pricing.
//
// Contract:
// - Longest-prefix lookup on the digit core of the dialed number.
// - Pure calculation + repository lookups; no switch interaction.
type Service struct {
	repo  RateRepository
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type CallCost struct {
	Prefix   string
	Currency string

	BillableSeconds int
	BillableMinutes int

	RatePerMinuteMinor int64
	TotalMinor         int64
}

var (
	ErrRateNotFound      = errors.New("pricing: rate not found")
	ErrInvalidPricingReq = errors.New("pricing: invalid request")
)

// PriceCall computes the cost of a call of the given duration to destination.
// at selects the effective rate; zero means now.
func (s *Service) PriceCall(ctx context.Context, destination string, durationSeconds int, at time.Time) (CallCost, error) {
	digits := encryption.DigitCore(destination)
	if digits == "" {
		return CallCost{}, ErrInvalidPricingReq
	}
	if durationSeconds <= 0 {
		return CallCost{}, ErrInvalidPricingReq
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}

	rate, ok, err := s.repo.FindRate(ctx, digits, at)
	if err != nil {
		return CallCost{}, err
	}
	if !ok {
		return CallCost{}, ErrRateNotFound
	}

	billableSec := billableSeconds(durationSeconds, rate.MinimumBillableSeconds, rate.BillingIncrementSeconds)
	billableMin := billableMinutesFromSeconds(billableSec)

	return CallCost{
		Prefix:             rate.Prefix,
		Currency:           rate.Currency,
		BillableSeconds:    billableSec,
		BillableMinutes:    billableMin,
		RatePerMinuteMinor: rate.RatePerMinuteMinor,
		TotalMinor:         rate.RatePerMinuteMinor * int64(billableMin),
	}, nil
}

// RateCall is the narrow rating entry point used by the call lifecycle: total
// amount and currency only.
func (s *Service) RateCall(ctx context.Context, destination string, durationSeconds int, at time.Time) (int64, string, error) {
	cost, err := s.PriceCall(ctx, destination, durationSeconds, at)
	if err != nil {
		return 0, "", err
	}
	return cost.TotalMinor, cost.Currency, nil
}

// RateRepository abstracts rate persistence.
// FindRate returns the longest-prefix active rate effective at the given time.
type RateRepository interface {
	FindRate(ctx context.Context, digits string, at time.Time) (Rate, bool, error)
}

func billableSeconds(actualSec int, minSec int, incrementSec int) int {
	if actualSec < 0 {
		return 0
	}
	if minSec <= 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	sec := actualSec
	if sec < minSec {
		sec = minSec
	}

	// round up to nearest increment
	q := sec / incrementSec
	r := sec % incrementSec
	if r != 0 {
		q++
	}
	return q * incrementSec
}

func billableMinutesFromSeconds(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	if m <= 0 {
		return 0
	}
	return m
}
