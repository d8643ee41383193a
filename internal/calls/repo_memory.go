package calls

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests and local development. One
// mutex covers all rows, which trivially satisfies the per-call linearization
// contract.
type MemoryRepo struct {
	mu       sync.Mutex
	byID     map[string]Call
	byHandle map[string]string
	events   map[string][]CallEvent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Call),
		byHandle: make(map[string]string),
		events:   make(map[string][]CallEvent),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Handle != "" {
		if _, exists := r.byHandle[c.Handle]; exists {
			return ErrDuplicateHandle
		}
		r.byHandle[c.Handle] = c.ID
	}
	r.byID[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetOwned(ctx context.Context, id, userID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.UserID != userID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetByHandle(ctx context.Context, handle string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHandle[handle]
	if !ok {
		return Call{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, newStatus CallStatus, fields StatusFields) (StatusUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return StatusUpdate{}, ErrNotFound
	}
	if !CanTransition(c.Status, newStatus) {
		return StatusUpdate{Applied: false, Call: c}, nil
	}

	c.Status = newStatus
	c.UpdatedAt = fields.Now
	if fields.AnsweredAt != nil && c.AnsweredAt == nil {
		c.AnsweredAt = fields.AnsweredAt
	}
	if newStatus.IsTerminal() {
		c.EndedAt = fields.EndedAt
		c.DurationSeconds = fields.DurationSeconds
		if fields.QualityScore != nil {
			c.QualityScore = fields.QualityScore
		}
		if fields.DisconnectReason != "" {
			c.DisconnectReason = fields.DisconnectReason
		}
		if fields.CostMinor != nil {
			c.CostMinor = fields.CostMinor
		}
		if fields.Currency != "" {
			c.Currency = fields.Currency
		}
	}
	c.Version++
	r.byID[id] = c
	return StatusUpdate{Applied: true, Call: c}, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, f ListFilter, p Page) ([]Call, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Call
	for _, c := range r.byID {
		if c.UserID != userID {
			continue
		}
		if !f.From.IsZero() && c.InitiatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && c.InitiatedAt.After(f.To) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InitiatedAt.After(matched[j].InitiatedAt)
	})

	total := len(matched)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if p.Limit <= 0 || end > total {
		end = total
	}
	out := make([]Call, end-p.Offset)
	copy(out, matched[p.Offset:end])
	return out, total, nil
}

func (r *MemoryRepo) AppendEvent(ctx context.Context, e CallEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.CallID] = append(r.events[e.CallID], e)
	return nil
}

func (r *MemoryRepo) ListEvents(ctx context.Context, callID string) ([]CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallEvent, len(r.events[callID]))
	copy(out, r.events[callID])
	return out, nil
}

// PurgeUser removes all calls and events for a user; used by the memory
// privacy store. Returns the number of calls removed.
func (r *MemoryRepo) PurgeUser(ctx context.Context, userID string) (callsDeleted, eventsDeleted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.byID {
		if c.UserID != userID {
			continue
		}
		delete(r.byID, id)
		if c.Handle != "" {
			delete(r.byHandle, c.Handle)
		}
		eventsDeleted += len(r.events[id])
		delete(r.events, id)
		callsDeleted++
	}
	return callsDeleted, eventsDeleted
}
