package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"sipcall-backend/internal/audit"
	"sipcall-backend/internal/auth"
	"sipcall-backend/internal/calls"
	"sipcall-backend/internal/config"
	"sipcall-backend/internal/encryption"
	"sipcall-backend/internal/privacy"
	"sipcall-backend/internal/ratelimit"
	"sipcall-backend/internal/rbac"
	"sipcall-backend/internal/reporting"
	"sipcall-backend/internal/telephony"
	"sipcall-backend/internal/users"

	"github.com/gin-gonic/gin"
)

type apiFixture struct {
	router   *gin.Engine
	gw       *telephony.MockGateway
	users    *users.Service
	userRepo *users.MemoryRepo
	reports  *reporting.MemoryRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authMgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	codec, err := encryption.NewCodec("test-master-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	userRepo := users.NewMemoryRepo()
	userSvc := users.NewService(userRepo)
	callRepo := calls.NewMemoryRepo()
	gw := &telephony.MockGateway{
		OriginateResp: telephony.OriginateResult{OK: true},
		HangupResp:    telephony.HangupResult{OK: true},
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	callMgr := calls.NewManager(callRepo, gw, limiter, codec, nil)
	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	privacySvc := privacy.NewService(userSvc, callRepo, auditSvc, codec,
		privacy.NewMemoryPurger(userRepo, callRepo, auditRepo), nil)
	reportRepo := &reporting.MemoryRepo{}
	reportSvc := reporting.NewService(reportRepo)

	h := Handlers{Auth: authMgr, Users: userSvc, Calls: callMgr, Privacy: privacySvc, Reports: reportSvc}

	r := gin.New()
	r.POST("/webhooks/switch/events", h.SwitchEvent)
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authMgr))
	callsGroup := v1.Group("/calls")
	callsGroup.Use(rbac.RequireCapability(userSvc, rbac.CapabilityCall))
	{
		callsGroup.POST("", h.PlaceCall)
		callsGroup.GET("", h.History)
		callsGroup.GET("/:call_id", h.GetCallStatus)
		callsGroup.POST("/:call_id/hangup", h.Hangup)
		callsGroup.POST("/:call_id/hold", h.Hold)
		callsGroup.POST("/:call_id/mute", h.Mute)
	}
	privacyGroup := v1.Group("/privacy")
	{
		privacyGroup.GET("/export", h.ExportData)
		privacyGroup.DELETE("/account", h.DeleteAccount)
		privacyGroup.PUT("/consent", h.UpdateConsent)
	}
	adminGroup := v1.Group("/admin")
	adminGroup.Use(rbac.RequireCapability(userSvc, rbac.CapabilityAdmin))
	{
		adminGroup.GET("/reports/calls", h.CallsReport)
	}

	return &apiFixture{router: r, gw: gw, users: userSvc, userRepo: userRepo, reports: reportRepo}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) login(t *testing.T, subject string) (token string, userID string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"subject_id": subject, "email": subject + "@example.com", "display_name": "Tester",
	})
	if w.Code != 200 {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken, resp.User.ID
}

func TestPlaceCallEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{
		"destination_number": "+14155551234", "caller_id": "+15550100",
	})
	if w.Code != 201 {
		t.Fatalf("place call: %d %s", w.Code, w.Body.String())
	}
	var resp callView
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CallID == "" || resp.Status != calls.CallStatusInitiated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if strings.Contains(w.Body.String(), "+14155551234") {
		t.Fatal("response leaked the destination number")
	}
}

func TestPlaceCallRequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/v1/calls", "", gin.H{"destination_number": "+14155551234"})
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPlaceCallInvalidDestination(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")
	w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "123"})
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
}

func TestPlaceCallRateLimited(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	for i := 0; i < ratelimit.DefaultLimit; i++ {
		if w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"}); w.Code != 201 {
			t.Fatalf("call %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"})
	if w.Code != 429 {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestGetCallStatusUnknown(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")
	w := f.do(t, http.MethodGet, "/v1/calls/no-such-call", token, nil)
	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHangupFlow(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"})
	if w.Code != 201 {
		t.Fatalf("place call: %d", w.Code)
	}
	var placed callView
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = f.do(t, http.MethodPost, "/v1/calls/"+placed.CallID+"/hangup", token, nil)
	if w.Code != 200 {
		t.Fatalf("hangup: %d %s", w.Code, w.Body.String())
	}
	var ended callView
	if err := json.Unmarshal(w.Body.Bytes(), &ended); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ended.Status != calls.CallStatusTerminated {
		t.Fatalf("status = %s, want terminated", ended.Status)
	}

	// Repeat hangup conflicts.
	w = f.do(t, http.MethodPost, "/v1/calls/"+placed.CallID+"/hangup", token, nil)
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestSwitchEventWebhook(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"})
	if w.Code != 201 {
		t.Fatalf("place call: %d", w.Code)
	}
	var placed callView
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	form := url.Values{}
	form.Set("Unique-ID", placed.CallUUID)
	form.Set("Event-Name", "CHANNEL_ANSWER")
	form.Set("Answer-State", "answered")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/switch/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("webhook: %d %s", rec.Code, rec.Body.String())
	}

	w = f.do(t, http.MethodGet, "/v1/calls/"+placed.CallID, token, nil)
	var got callView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != calls.CallStatusAnswered {
		t.Fatalf("status = %s, want answered", got.Status)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	for i := 0; i < 3; i++ {
		if w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"}); w.Code != 201 {
			t.Fatalf("place call: %d", w.Code)
		}
	}

	w := f.do(t, http.MethodGet, "/v1/calls?limit=2", token, nil)
	if w.Code != 200 {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
	var page calls.HistoryPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.TotalCount != 3 || len(page.Calls) != 2 || !page.HasMore {
		t.Fatalf("unexpected page: total=%d len=%d more=%v", page.TotalCount, len(page.Calls), page.HasMore)
	}
}

func TestConsentAndExport(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	w := f.do(t, http.MethodPut, "/v1/privacy/consent", token, gin.H{"consent": true})
	if w.Code != 200 {
		t.Fatalf("consent: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"}); w.Code != 201 {
		t.Fatalf("place call: %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/privacy/export", token, nil)
	if w.Code != 200 {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "+14155551234") {
		t.Fatal("export missing decrypted destination")
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "sub-1")

	if w := f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"}); w.Code != 201 {
		t.Fatalf("place call: %d", w.Code)
	}

	w := f.do(t, http.MethodDelete, "/v1/privacy/account", token, nil)
	if w.Code != 200 {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	var del struct {
		DeletionID string `json:"deletion_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &del); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(del.DeletionID, "del_") {
		t.Fatalf("deletion id = %q", del.DeletionID)
	}

	// The erased account cannot place calls anymore.
	w = f.do(t, http.MethodPost, "/v1/calls", token, gin.H{"destination_number": "+14155551234"})
	if w.Code != 401 {
		t.Fatalf("expected 401 after deletion, got %d", w.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"subject_id": "sub-1"})
	if w.Code != 200 {
		t.Fatalf("login: %d", w.Code)
	}
	var resp struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": resp.RefreshToken})
	if w.Code != 200 {
		t.Fatalf("refresh: %d %s", w.Code, w.Body.String())
	}

	// An access token is not a refresh token.
	token, _ := f.login(t, "sub-2")
	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": token})
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminCallsReport(t *testing.T) {
	f := newAPIFixture(t)
	token, userID := f.login(t, "admin-sub")

	// Plain users cannot reach admin surfaces.
	w := f.do(t, http.MethodGet, "/v1/admin/reports/calls", token, nil)
	if w.Code != 403 {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}

	u, err := f.userRepo.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	u.Capabilities.IsAdmin = true
	if err := f.userRepo.Update(context.Background(), u); err != nil {
		t.Fatalf("update user: %v", err)
	}

	dur := 120
	cost := int64(250)
	f.reports.Calls = []calls.Call{
		{
			ID:              "c1",
			Status:          calls.CallStatusCompleted,
			InitiatedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			DurationSeconds: &dur,
			CostMinor:       &cost,
			Currency:        "USD",
		},
		{
			ID:          "c2",
			Status:      calls.CallStatusFailed,
			InitiatedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		},
	}

	w = f.do(t, http.MethodGet,
		"/v1/admin/reports/calls?from=2025-06-01T00:00:00Z&to=2025-06-02T00:00:00Z", token, nil)
	if w.Code != 200 {
		t.Fatalf("report: %d %s", w.Code, w.Body.String())
	}
	var summary reporting.CallsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalCalls != 2 || summary.CompletedCalls != 1 || summary.FailedCalls != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.TotalCostMinor["USD"] != 250 {
		t.Fatalf("cost = %d, want 250", summary.TotalCostMinor["USD"])
	}

	// Missing range is rejected.
	w = f.do(t, http.MethodGet, "/v1/admin/reports/calls", token, nil)
	if w.Code != 400 {
		t.Fatalf("expected 400 without range, got %d", w.Code)
	}
}
