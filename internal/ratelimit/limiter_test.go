package ratelimit

import (
	"context"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSixthAttemptRejected(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	l := NewLimiter(NewMemoryStore(), 5, time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Admit(ctx, "u1", "call")
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	d, err := l.Admit(ctx, "u1", "call")
	if err != nil {
		t.Fatalf("admit 6: %v", err)
	}
	if d.Allowed {
		t.Fatalf("6th attempt within the window should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", d.RetryAfter)
	}
}

func TestWindowRollAdmitsAgain(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	now := base
	l := NewLimiter(NewMemoryStore(), 5, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	// First attempt at t0, four more spread over the next 10s.
	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i*2) * time.Second)
		if d, _ := l.Admit(ctx, "u1", "call"); !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	now = base.Add(30 * time.Second)
	if d, _ := l.Admit(ctx, "u1", "call"); d.Allowed {
		t.Fatalf("attempt inside the full window should be rejected")
	}

	// Exactly one window past the first attempt: that slot has expired.
	now = base.Add(time.Minute)
	d, err := l.Admit(ctx, "u1", "call")
	if err != nil {
		t.Fatalf("admit after roll: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("attempt after the window rolled past the first slot should be admitted")
	}
}

func TestUsersAndActionsAreIsolated(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	l := NewLimiter(NewMemoryStore(), 1, time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	if d, _ := l.Admit(ctx, "u1", "call"); !d.Allowed {
		t.Fatalf("first u1 attempt should pass")
	}
	if d, _ := l.Admit(ctx, "u1", "call"); d.Allowed {
		t.Fatalf("second u1 attempt should be rejected")
	}
	if d, _ := l.Admit(ctx, "u2", "call"); !d.Allowed {
		t.Fatalf("u2 must not be affected by u1's window")
	}
	if d, _ := l.Admit(ctx, "u1", "export"); !d.Allowed {
		t.Fatalf("a different action class must not share the window")
	}
}

func TestAdmitRequiresIdentity(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), 5, time.Minute)
	if _, err := l.Admit(context.Background(), "", "call"); err == nil {
		t.Fatalf("expected error for empty user")
	}
}
