package audit

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) AnonymizeByUser(ctx context.Context, userID, deletionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	marker, err := json.Marshal(AnonymizationMarker{Anonymized: true, DeletionID: deletionID})
	if err != nil {
		return 0, err
	}

	var n int
	for i := range r.entries {
		if r.entries[i].UserID != nil && *r.entries[i].UserID == userID {
			r.entries[i].UserID = nil
			r.entries[i].Details = marker
			n++
		}
	}
	return n, nil
}

// Entries returns a copy of all rows; tests only.
func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
