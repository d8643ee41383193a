package privacy

import (
	"context"
	"encoding/json"

	"sipcall-backend/internal/audit"
	"sipcall-backend/internal/calls"
	"sipcall-backend/internal/users"

	"github.com/google/uuid"
)

// MemoryPurger wires the in-memory repositories together for tests. Unlike
// the postgres purger it is not transactional.
type MemoryPurger struct {
	users *users.MemoryRepo
	calls *calls.MemoryRepo
	audit *audit.MemoryRepo
}

func NewMemoryPurger(ur *users.MemoryRepo, cr *calls.MemoryRepo, ar *audit.MemoryRepo) *MemoryPurger {
	return &MemoryPurger{users: ur, calls: cr, audit: ar}
}

func (p *MemoryPurger) PurgeUserData(ctx context.Context, req PurgeRequest) (PurgeResult, error) {
	details, err := json.Marshal(map[string]any{"deletion_id": req.DeletionID})
	if err != nil {
		return PurgeResult{}, err
	}
	uid := req.UserID
	err = p.audit.Append(ctx, audit.Entry{
		ID:           uuid.NewString(),
		UserID:       &uid,
		Action:       audit.ActionDeletionRequest,
		ResourceType: "user",
		ResourceID:   req.UserID,
		Details:      details,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		CreatedAt:    req.RequestedAt,
	})
	if err != nil {
		return PurgeResult{}, err
	}

	var res PurgeResult
	res.CallsDeleted, res.EventsDeleted = p.calls.PurgeUser(ctx, req.UserID)

	res.AuditAnonymized, err = p.audit.AnonymizeByUser(ctx, req.UserID, req.DeletionID)
	if err != nil {
		return PurgeResult{}, err
	}
	if err := p.users.Delete(ctx, req.UserID); err != nil {
		return PurgeResult{}, err
	}
	return res, nil
}
