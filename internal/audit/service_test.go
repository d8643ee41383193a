package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRecordRequiresAction(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Record(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for missing action")
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo).WithClock(func() time.Time { return now })

	if err := svc.LogDataExport(context.Background(), "u1", "1.2.3.4", "curl/8", 3); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry")
	}
	e := entries[0]
	if e.ID == "" || !e.CreatedAt.Equal(now) {
		t.Fatalf("id/timestamp not filled: %+v", e)
	}
	if e.Action != ActionDataExport || e.IPAddress != "1.2.3.4" {
		t.Fatalf("entry fields wrong: %+v", e)
	}
}

func TestAnonymizePreservesRowsAndTimestamps(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Unix(1700000000, 0).UTC()
	now := base
	svc := NewService(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = svc.LogConsentChange(ctx, "u1", true)
	now = base.Add(time.Hour)
	_ = svc.LogDataExport(ctx, "u1", "", "", 2)
	_ = svc.LogConsentChange(ctx, "u2", false)

	n, err := svc.Anonymize(ctx, "u1", "del_abc")
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows rewritten, got %d", n)
	}

	entries := repo.Entries()
	if len(entries) != 3 {
		t.Fatalf("row count must be preserved, got %d", len(entries))
	}
	if !entries[0].CreatedAt.Equal(base) || !entries[1].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("timestamps must be preserved")
	}

	var anonymized int
	for _, e := range entries {
		if e.UserID == nil {
			var m AnonymizationMarker
			if err := json.Unmarshal(e.Details, &m); err != nil {
				t.Fatalf("marker unmarshal: %v", err)
			}
			if !m.Anonymized || m.DeletionID != "del_abc" {
				t.Fatalf("marker wrong: %+v", m)
			}
			anonymized++
		}
	}
	if anonymized != 2 {
		t.Fatalf("expected 2 anonymized rows, got %d", anonymized)
	}

	// u2's row is untouched.
	u2, _ := svc.ListByUser(ctx, "u2")
	if len(u2) != 1 {
		t.Fatalf("unrelated user's rows must survive")
	}
}
