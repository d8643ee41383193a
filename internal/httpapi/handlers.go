package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sipcall-backend/internal/auth"
	"sipcall-backend/internal/calls"
	"sipcall-backend/internal/privacy"
	"sipcall-backend/internal/reporting"
	"sipcall-backend/internal/telephony"
	"sipcall-backend/internal/users"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Users   *users.Service
	Calls   *calls.Manager
	Privacy *privacy.Service
	Reports *reporting.Service
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Login provisions the user on first authentication and issues a token pair.
//
// NOTE: Subject assertion is delegated to the identity provider fronting this
// service; this endpoint trusts the asserted subject_id.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SubjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "subject_id required"})
		return
	}

	u, err := h.Users.ProvisionLogin(c.Request.Context(), req.SubjectID, req.Email, req.DisplayName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), u.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user":          u,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	// The user must still exist; erased accounts cannot refresh.
	if _, err := h.Users.Get(c.Request.Context(), claims.UserID); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

/* ===================== CALLS ===================== */

type placeCallRequest struct {
	DestinationNumber string `json:"destination_number"`
	CallerID          string `json:"caller_id"`
}

// callView is the wire shape of a call; ciphertext fields never leave the
// service.
type callView struct {
	CallID           string           `json:"call_id"`
	CallUUID         string           `json:"call_uuid,omitempty"`
	Status           calls.CallStatus `json:"status"`
	Direction        calls.Direction  `json:"direction"`
	InitiatedAt      time.Time        `json:"initiated_at"`
	AnsweredAt       *time.Time       `json:"answered_at,omitempty"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
	DurationSeconds  *int             `json:"duration_seconds,omitempty"`
	CostMinor        *int64           `json:"cost_minor,omitempty"`
	Currency         string           `json:"currency"`
	QualityScore     *float64         `json:"quality_score,omitempty"`
	DisconnectReason string           `json:"disconnect_reason,omitempty"`
}

func toCallView(c calls.Call) callView {
	return callView{
		CallID:           c.ID,
		CallUUID:         c.Handle,
		Status:           c.Status,
		Direction:        c.Direction,
		InitiatedAt:      c.InitiatedAt,
		AnsweredAt:       c.AnsweredAt,
		EndedAt:          c.EndedAt,
		DurationSeconds:  c.DurationSeconds,
		CostMinor:        c.CostMinor,
		Currency:         c.Currency,
		QualityScore:     c.QualityScore,
		DisconnectReason: c.DisconnectReason,
	}
}

func (h Handlers) PlaceCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.DestinationNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "destination_number required"})
		return
	}

	call, err := h.Calls.PlaceCall(c.Request.Context(), userID, req.DestinationNumber, req.CallerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCallView(call))
}

func (h Handlers) GetCallStatus(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	call, err := h.Calls.GetStatus(c.Request.Context(), c.Param("call_id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCallView(call))
}

func (h Handlers) Hangup(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	call, err := h.Calls.Hangup(c.Request.Context(), c.Param("call_id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCallView(call))
}

type toggleRequest struct {
	On *bool `json:"on"`
}

func (h Handlers) Hold(c *gin.Context) {
	h.toggle(c, h.Calls.Hold)
}

func (h Handlers) Mute(c *gin.Context) {
	h.toggle(c, h.Calls.Mute)
}

func (h Handlers) toggle(c *gin.Context, op func(ctx context.Context, callID, userID string, on bool) error) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "on required"})
		return
	}
	if err := op(c.Request.Context(), c.Param("call_id"), userID, *req.On); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h Handlers) History(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	var f calls.ListFilter
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		f.To = t
	}
	p := calls.Page{
		Offset: queryInt(c, "offset", 0),
		Limit:  queryInt(c, "limit", 0),
	}

	page, err := h.Calls.History(c.Request.Context(), userID, f, p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) CallEvents(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	events, err := h.Calls.Events(c.Request.Context(), c.Param("call_id"), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

/* ===================== SWITCH WEBHOOK ===================== */

// SwitchEvent ingests a switch-side status report and reconciles it against
// the stored call. Unknown handles are acknowledged with 404 so the switch
// stops retrying.
func (h Handlers) SwitchEvent(c *gin.Context) {
	form, err := telephony.ParseSwitchEvent(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}
	call, err := h.Calls.ApplySwitchReport(c.Request.Context(), form.CallUUID, form.ToStatusResult())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": call.ID, "status": call.Status})
}

/* ===================== PRIVACY ===================== */

func (h Handlers) ExportData(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	export, err := h.Privacy.ExportUserData(c.Request.Context(), userID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, export)
}

func (h Handlers) DeleteAccount(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	del, err := h.Privacy.DeleteAccount(c.Request.Context(), userID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, del)
}

type consentRequest struct {
	Consent *bool `json:"consent"`
}

func (h Handlers) UpdateConsent(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Consent == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "consent required"})
		return
	}
	u, err := h.Privacy.UpdateConsent(c.Request.Context(), userID, *req.Consent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

/* ===================== ADMIN REPORTS ===================== */

func (h Handlers) CallsReport(c *gin.Context) {
	var r reporting.TimeRange
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		r.To = t
	}

	summary, err := h.Reports.CallsSummary(c.Request.Context(), r)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to are required and to must be after from"})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

/* ===================== ERROR MAPPING ===================== */

// abortWithError translates domain errors to HTTP. Anything unrecognized is a
// 500 with no detail leakage.
func abortWithError(c *gin.Context, err error) {
	var rl *calls.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter/time.Second)+1))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	var of *calls.OriginationFailedError
	if errors.As(err, &of) {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call origination failed", "reason": of.Reason})
		return
	}

	switch {
	case errors.Is(err, calls.ErrInvalidDestination):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid destination number"})
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, users.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, calls.ErrPermissionDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, users.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calls.ErrAlreadyTerminated):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already ended"})
	case errors.Is(err, calls.ErrGatewayUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "switch unavailable"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
