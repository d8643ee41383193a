package calls

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sipcall-backend/internal/encryption"
	"sipcall-backend/internal/ratelimit"
	"sipcall-backend/internal/telephony"

	"github.com/google/uuid"
)

// Manager orchestrates the call lifecycle: admission, switch origination,
// state tracking, reconciliation against switch-reported status, and terminal
// persistence.
//
// State writes go through Repository.UpdateStatus, which owns the atomic
// forward-only transition check; the manager never assumes its own read of
// the call is still current when it writes.
// Pricer rates a completed call. A nil pricer leaves cost fields unset.
type Pricer interface {
	RateCall(ctx context.Context, destination string, durationSeconds int, at time.Time) (amountMinor int64, currency string, err error)
}

type Manager struct {
	repo    Repository
	gateway telephony.Gateway
	limiter *ratelimit.Limiter
	codec   *encryption.Codec
	pricer  Pricer
	log     *slog.Logger
	clock   func() time.Time

	// gatewayTimeout bounds each switch call; a timeout is the failure branch
	// of whichever operation issued it.
	gatewayTimeout time.Duration
}

// RateLimitAction is the admission class consumed by call placement.
const RateLimitAction = "call"

func NewManager(repo Repository, gw telephony.Gateway, limiter *ratelimit.Limiter, codec *encryption.Codec, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		repo:           repo,
		gateway:        gw,
		limiter:        limiter,
		codec:          codec,
		log:            log,
		clock:          time.Now,
		gatewayTimeout: 5 * time.Second,
	}
}

// WithClock overrides the time source; tests only.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithPricer enables cost rating of terminal calls.
func (m *Manager) WithPricer(p Pricer) *Manager {
	m.pricer = p
	return m
}

/* ===================== PLACE CALL ===================== */

// PlaceCall validates, admits, originates and persists a new outbound call.
//
// Failure ordering matters: validation rejects before the rate limiter is
// consulted (an invalid destination never consumes a slot), and the limiter
// rejects before the switch is contacted. A switch rejection is still
// persisted as a cancelled call so the attempt is auditable.
func (m *Manager) PlaceCall(ctx context.Context, userID, destination, callerID string) (Call, error) {
	if userID == "" {
		return Call{}, ErrInvalidArgument
	}
	if !encryption.ValidPhoneNumber(destination) {
		return Call{}, ErrInvalidDestination
	}

	decision, err := m.limiter.Admit(ctx, userID, RateLimitAction)
	if err != nil {
		return Call{}, err
	}
	if !decision.Allowed {
		return Call{}, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	masked := encryption.MaskNumber(destination)
	m.log.Info("originating call", "user_id", userID, "destination", masked)

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	res, gwErr := m.gateway.Originate(gwCtx, destination, callerID)

	now := m.clock().UTC()

	if gwErr != nil || !res.OK {
		reason := res.Reason
		if gwErr != nil {
			reason = gwErr.Error()
		}
		if err := m.recordCancelledAttempt(ctx, userID, destination, callerID, reason, now); err != nil {
			m.log.Error("recording cancelled call failed", "user_id", userID, "err", err)
		}
		return Call{}, &OriginationFailedError{Reason: reason}
	}

	call, err := m.newCall(userID, destination, callerID, now)
	if err != nil {
		return Call{}, err
	}
	call.Handle = res.Handle
	call.Status = CallStatusInitiated

	if err := m.repo.Create(ctx, call); err != nil {
		return Call{}, err
	}

	m.appendEvent(ctx, call.ID, EventInitiated, map[string]any{
		"destination": masked,
		"call_uuid":   call.Handle,
	})

	m.log.Info("call initiated", "call_id", call.ID, "call_uuid", call.Handle)
	return call, nil
}

func (m *Manager) newCall(userID, destination, callerID string, now time.Time) (Call, error) {
	destEnc, err := m.codec.EncryptPhoneNumber(destination)
	if err != nil {
		return Call{}, ErrInvalidDestination
	}
	callerEnc, err := m.codec.Encrypt(callerID)
	if err != nil {
		return Call{}, err
	}
	return Call{
		ID:             uuid.NewString(),
		UserID:         userID,
		DestinationEnc: destEnc,
		CallerIDEnc:    callerEnc,
		Direction:      DirectionOutbound,
		Currency:       "USD",
		InitiatedAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (m *Manager) recordCancelledAttempt(ctx context.Context, userID, destination, callerID, reason string, now time.Time) error {
	call, err := m.newCall(userID, destination, callerID, now)
	if err != nil {
		return err
	}
	zero := 0
	call.Status = CallStatusCancelled
	call.EndedAt = &now
	call.DurationSeconds = &zero
	call.DisconnectReason = reason

	if err := m.repo.Create(ctx, call); err != nil {
		return err
	}
	m.appendEvent(ctx, call.ID, EventOriginationFailed, map[string]any{
		"destination": encryption.MaskNumber(destination),
		"reason":      reason,
	})
	return nil
}

/* ===================== STATUS & RECONCILIATION ===================== */

// GetStatus returns the ownership-checked call, reconciled against the
// switch when the call is still live. A switch query failure degrades to the
// last known local status.
func (m *Manager) GetStatus(ctx context.Context, callID, userID string) (Call, error) {
	call, err := m.repo.GetOwned(ctx, callID, userID)
	if err != nil {
		return Call{}, err
	}
	if call.Status.IsTerminal() || call.Handle == "" {
		return call, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	res, gwErr := m.gateway.GetStatus(gwCtx, call.Handle)
	if gwErr != nil {
		m.log.Warn("status query failed, serving local state",
			"call_id", call.ID, "err", gwErr)
		return call, nil
	}
	return m.reconcile(ctx, call, res)
}

// ApplySwitchReport feeds a switch-initiated status report (webhook path)
// through the same reconciliation rule as polled status.
func (m *Manager) ApplySwitchReport(ctx context.Context, handle string, res telephony.StatusResult) (Call, error) {
	call, err := m.repo.GetByHandle(ctx, handle)
	if err != nil {
		return Call{}, err
	}
	return m.reconcile(ctx, call, res)
}

// reconcile applies a switch-reported status under the forward-only rule.
// Out-of-order and terminal-repeat reports are no-ops.
func (m *Manager) reconcile(ctx context.Context, call Call, res telephony.StatusResult) (Call, error) {
	target, ok := mapSwitchStatus(res.Status)
	if !ok || target == call.Status || call.Status.IsTerminal() {
		return call, nil
	}

	now := m.clock().UTC()
	fields := StatusFields{Now: now}
	if target == CallStatusAnswered {
		fields.AnsweredAt = &now
	}
	if target.IsTerminal() {
		dur := res.DurationSeconds
		fields.EndedAt = &now
		fields.DurationSeconds = &dur
		fields.QualityScore = clampQuality(res.QualityScore)
		m.rate(ctx, call, dur, now, &fields)
	}

	upd, err := m.repo.UpdateStatus(ctx, call.ID, target, fields)
	if err != nil {
		return Call{}, err
	}
	if !upd.Applied {
		// Raced with another transition; the stored row wins.
		return upd.Call, nil
	}

	m.appendEvent(ctx, call.ID, EventStatusChanged, map[string]any{
		"from": call.Status,
		"to":   target,
	})
	m.log.Info("call status reconciled", "call_id", call.ID, "from", call.Status, "to", target)
	return upd.Call, nil
}

func mapSwitchStatus(s telephony.Status) (CallStatus, bool) {
	switch s {
	case telephony.StatusRinging:
		return CallStatusRinging, true
	case telephony.StatusAnswered:
		return CallStatusAnswered, true
	case telephony.StatusCompleted:
		return CallStatusCompleted, true
	case telephony.StatusFailed:
		return CallStatusFailed, true
	}
	return "", false
}

// rate fills cost fields for a terminal transition. Rating is best-effort: a
// missing rate or decrypt failure leaves cost unset, never blocks the
// transition.
func (m *Manager) rate(ctx context.Context, call Call, durationSeconds int, now time.Time, fields *StatusFields) {
	if m.pricer == nil || durationSeconds <= 0 {
		return
	}
	dest, err := m.codec.DecryptPhoneNumber(call.DestinationEnc)
	if err != nil {
		m.log.Warn("rating skipped, destination unreadable", "call_id", call.ID)
		return
	}
	amount, currency, err := m.pricer.RateCall(ctx, dest, durationSeconds, now)
	if err != nil {
		m.log.Debug("call not rated", "call_id", call.ID, "err", err)
		return
	}
	fields.CostMinor = &amount
	fields.Currency = currency
}

// clampQuality keeps switch-reported scores inside [0,5].
func clampQuality(q *float64) *float64 {
	if q == nil {
		return nil
	}
	v := *q
	if v < 0 {
		v = 0
	}
	if v > 5 {
		v = 5
	}
	return &v
}

/* ===================== HANGUP ===================== */

// Hangup requests teardown of a live call. A terminal call fails with
// ErrAlreadyTerminated before any switch contact; a switch failure leaves
// local state untouched.
func (m *Manager) Hangup(ctx context.Context, callID, userID string) (Call, error) {
	call, err := m.repo.GetOwned(ctx, callID, userID)
	if err != nil {
		return Call{}, err
	}
	if call.Status.IsTerminal() {
		return Call{}, ErrAlreadyTerminated
	}

	m.appendEvent(ctx, call.ID, EventHangupRequested, nil)

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	res, gwErr := m.gateway.Hangup(gwCtx, call.Handle)
	if gwErr != nil || !res.OK {
		if gwErr != nil {
			m.log.Error("hangup failed", "call_id", call.ID, "err", gwErr)
		}
		return Call{}, ErrGatewayUnavailable
	}

	now := m.clock().UTC()
	dur := 0
	if call.AnsweredAt != nil {
		dur = int(now.Sub(*call.AnsweredAt) / time.Second)
	}
	fields := StatusFields{
		Now:              now,
		EndedAt:          &now,
		DurationSeconds:  &dur,
		DisconnectReason: "user_hangup",
	}
	m.rate(ctx, call, dur, now, &fields)
	upd, err := m.repo.UpdateStatus(ctx, call.ID, CallStatusTerminated, fields)
	if err != nil {
		return Call{}, err
	}
	if upd.Applied {
		m.appendEvent(ctx, call.ID, EventStatusChanged, map[string]any{
			"from": call.Status,
			"to":   CallStatusTerminated,
		})
	}
	return upd.Call, nil
}

/* ===================== IN-CALL CONTROLS ===================== */

// Hold toggles hold on a live call.
func (m *Manager) Hold(ctx context.Context, callID, userID string, hold bool) error {
	return m.control(ctx, callID, userID, EventHold, hold, m.gateway.Hold)
}

// Mute toggles mute on a live call.
func (m *Manager) Mute(ctx context.Context, callID, userID string, mute bool) error {
	return m.control(ctx, callID, userID, EventMute, mute, m.gateway.Mute)
}

func (m *Manager) control(ctx context.Context, callID, userID, event string, on bool, op func(context.Context, string, bool) error) error {
	call, err := m.repo.GetOwned(ctx, callID, userID)
	if err != nil {
		return err
	}
	if call.Status.IsTerminal() {
		return ErrAlreadyTerminated
	}

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	if err := op(gwCtx, call.Handle, on); err != nil {
		m.log.Error("call control failed", "call_id", call.ID, "event", event, "err", err)
		return ErrGatewayUnavailable
	}
	m.appendEvent(ctx, call.ID, event, map[string]any{"on": on})
	return nil
}

/* ===================== HISTORY ===================== */

// HistoryItem is one decrypted history entry. DecryptError marks records
// whose ciphertext could not be opened; the batch continues past them.
type HistoryItem struct {
	CallID          string     `json:"call_id"`
	Destination     string     `json:"destination_number,omitempty"`
	DecryptError    bool       `json:"decrypt_error,omitempty"`
	Status          CallStatus `json:"status"`
	InitiatedAt     time.Time  `json:"initiated_at"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CostMinor       *int64     `json:"cost_minor,omitempty"`
	Currency        string     `json:"currency"`
	QualityScore    *float64   `json:"quality_score,omitempty"`
}

type HistoryPage struct {
	Calls      []HistoryItem `json:"calls"`
	TotalCount int           `json:"total_count"`
	HasMore    bool          `json:"has_more"`
}

const (
	historyDefaultLimit = 50
	historyMaxLimit     = 100
)

// History lists the user's calls newest first, decrypting destinations at
// read time. Per-record decrypt failures degrade to a marker.
func (m *Manager) History(ctx context.Context, userID string, f ListFilter, p Page) (HistoryPage, error) {
	if p.Limit <= 0 {
		p.Limit = historyDefaultLimit
	}
	if p.Limit > historyMaxLimit {
		p.Limit = historyMaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	rows, total, err := m.repo.ListByUser(ctx, userID, f, p)
	if err != nil {
		return HistoryPage{}, err
	}

	items := make([]HistoryItem, 0, len(rows))
	for _, c := range rows {
		item := HistoryItem{
			CallID:          c.ID,
			Status:          c.Status,
			InitiatedAt:     c.InitiatedAt,
			DurationSeconds: c.DurationSeconds,
			CostMinor:       c.CostMinor,
			Currency:        c.Currency,
			QualityScore:    c.QualityScore,
		}
		dest, err := m.codec.DecryptPhoneNumber(c.DestinationEnc)
		if err != nil {
			m.log.Error("history decrypt failed", "call_id", c.ID, "err", err)
			item.DecryptError = true
		} else {
			item.Destination = dest
		}
		items = append(items, item)
	}

	return HistoryPage{
		Calls:      items,
		TotalCount: total,
		HasMore:    p.Offset+p.Limit < total,
	}, nil
}

/* ===================== EVENTS ===================== */

// Events returns the ownership-checked event stream for a call.
func (m *Manager) Events(ctx context.Context, callID, userID string) ([]CallEvent, error) {
	if _, err := m.repo.GetOwned(ctx, callID, userID); err != nil {
		return nil, err
	}
	return m.repo.ListEvents(ctx, callID)
}

// appendEvent is best-effort: event loss is logged, never blocks the state
// transition that produced it.
func (m *Manager) appendEvent(ctx context.Context, callID, eventType string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			m.log.Error("event payload marshal failed", "call_id", callID, "err", err)
			return
		}
		raw = b
	}
	e := CallEvent{
		ID:        uuid.NewString(),
		CallID:    callID,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: m.clock().UTC(),
	}
	if err := m.repo.AppendEvent(ctx, e); err != nil {
		m.log.Error("event append failed", "call_id", callID, "event", eventType, "err", err)
	}
}
