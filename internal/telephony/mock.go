package telephony

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is a scriptable Gateway for tests. Each response field is
// returned as-is; Err fields short-circuit the call.
type MockGateway struct {
	mu sync.Mutex

	OriginateResp OriginateResult
	OriginateErr  error
	HangupResp    HangupResult
	HangupErr     error
	StatusResp    StatusResult
	StatusErr     error
	HoldErr       error
	MuteErr       error

	OriginateCalls int
	HangupCalls    int
	StatusCalls    int
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) HealthCheck(ctx context.Context) error { return nil }

func (m *MockGateway) Originate(ctx context.Context, destination, callerID string) (OriginateResult, error) {
	m.mu.Lock()
	m.OriginateCalls++
	m.mu.Unlock()
	if m.OriginateErr != nil {
		return OriginateResult{}, m.OriginateErr
	}
	res := m.OriginateResp
	// A successful originate always carries a fresh handle unless the test
	// pinned one.
	if res.OK && res.Handle == "" {
		res.Handle = uuid.NewString()
	}
	return res, nil
}

func (m *MockGateway) Hangup(ctx context.Context, handle string) (HangupResult, error) {
	m.mu.Lock()
	m.HangupCalls++
	m.mu.Unlock()
	if m.HangupErr != nil {
		return HangupResult{}, m.HangupErr
	}
	return m.HangupResp, nil
}

func (m *MockGateway) GetStatus(ctx context.Context, handle string) (StatusResult, error) {
	m.mu.Lock()
	m.StatusCalls++
	m.mu.Unlock()
	if m.StatusErr != nil {
		return StatusResult{}, m.StatusErr
	}
	return m.StatusResp, nil
}

func (m *MockGateway) Hold(ctx context.Context, handle string, hold bool) error { return m.HoldErr }

func (m *MockGateway) Mute(ctx context.Context, handle string, mute bool) error { return m.MuteErr }
