package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/advisor"
	"finboard/internal/banking"
	"finboard/internal/core"
	"finboard/internal/middleware/trace"
	"finboard/internal/services"
	"finboard/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixtureTransactions() []core.Transaction {
	day := func(d int) time.Time { return time.Date(2025, time.January, d, 9, 0, 0, 0, time.UTC) }
	return []core.Transaction{
		{ID: "t1", Timestamp: day(10), Amount: dec("-3.50"), Description: "TESCO STORES", AccountID: "acc-1"},
		{ID: "t2", Timestamp: day(11), Amount: dec("-4.23"), Description: "COSTA COFFEE", AccountID: "acc-1"},
		{ID: "t3", Timestamp: day(12), Amount: dec("-29.00"), Description: "Sainsbury's", AccountID: "acc-2"},
		{ID: "t4", Timestamp: day(1), Amount: dec("2000"), Description: "ACME PAYROLL", AccountID: "acc-1"},
	}
}

type pingFailing struct {
	*services.DashboardService
}

func (pingFailing) Ping(context.Context) error { return errors.New("store unreachable") }

func newDashboard(adv advisor.Advisor) *services.DashboardService {
	src := banking.NewStaticSource(map[string][]core.Transaction{"u1": fixtureTransactions()})
	return services.NewDashboardService(src, memory.New(), nil, adv, nil, services.DashboardConfig{})
}

func newTestServer(t *testing.T, svc Dashboard, cfg Config) *Server {
	t.Helper()
	srv := NewServer(cfg, svc)
	srv.now = func() time.Time { return time.Date(2025, time.January, 20, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(srv.limiter.Stop)
	return srv
}

// do sends a request as user (empty for anonymous) and returns the recorder.
func do(t *testing.T, srv *Server, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set(UserIDHeader, user)
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", path, rec.Code, rec.Body.String())
		}
	}

	down := newTestServer(t, pingFailing{newDashboard(nil)}, Config{})
	rec := do(t, down, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d, want 503", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "not_ready" {
		t.Errorf("status = %v, want not_ready", body["status"])
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})
	rec := do(t, srv, http.MethodGet, "/healthz", "", "")

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing security headers: %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Header().Get(trace.RequestIDHeader), "req_") {
		t.Errorf("request id header = %q", rec.Header().Get(trace.RequestIDHeader))
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSpending(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})

	tests := []struct {
		name   string
		target string
		user   string
		status int
		code   string
	}{
		{"no user", "/api/spending", "", http.StatusUnauthorized, "unauthorized"},
		{"unknown period", "/api/spending?period=fortnight", "u1", http.StatusBadRequest, "bad_request"},
		{"bad date", "/api/spending?period=range&from=2025-13-01", "u1", http.StatusBadRequest, "bad_request"},
		{"this month", "/api/spending", "u1", http.StatusOK, ""},
		{"range", "/api/spending?period=range&from=2025-01-01&to=2025-01-31", "u1", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, tt.user, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if got := decodeBody[ErrorResponse](t, rec); got.Code != tt.code {
					t.Errorf("code = %q, want %q", got.Code, tt.code)
				}
			}
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/spending?period=all", "u1", "")
	got := decodeBody[services.SpendingSummary](t, rec)
	if len(got.Categories) != 2 || got.Categories[0].Category != core.Groceries {
		t.Fatalf("categories = %+v", got.Categories)
	}
	if !got.Categories[0].TotalAmount.Equal(dec("32.50")) || got.Categories[0].PercentageOfTotal != 88 {
		t.Errorf("groceries = %+v", got.Categories[0])
	}
	if !got.Total.Equal(dec("36.73")) || got.TransactionCount != 3 {
		t.Errorf("total = %s count = %d", got.Total, got.TransactionCount)
	}
}

func TestSpendingBreakdowns(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})

	rec := do(t, srv, http.MethodGet, "/api/spending/accounts?period=all", "u1", "")
	accounts := decodeBody[map[string][]core.GroupTotal](t, rec)["accounts"]
	if len(accounts) != 2 {
		t.Fatalf("accounts = %+v", accounts)
	}

	rec = do(t, srv, http.MethodGet, "/api/spending/monthly?period=all", "u1", "")
	months := decodeBody[map[string][]core.GroupTotal](t, rec)["months"]
	if len(months) != 1 || months[0].Key != "2025-01" {
		t.Fatalf("months = %+v", months)
	}

	rec = do(t, srv, http.MethodGet, "/api/income?period=all", "u1", "")
	income := decodeBody[services.SpendingSummary](t, rec)
	if !income.Total.Equal(dec("2000")) {
		t.Errorf("income total = %s, want 2000", income.Total)
	}
}

func TestRoundUpInvestFlow(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})

	rec := do(t, srv, http.MethodGet, "/api/roundups", "u1", "")
	summary := decodeBody[services.RoundUpSummary](t, rec)
	if !summary.Pool.TotalAvailable.Equal(dec("1.27")) || summary.Version != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Funds) != 3 {
		t.Errorf("funds = %+v", summary.Funds)
	}

	rec = do(t, srv, http.MethodPost, "/api/roundups/invest", "u1", `{"fund":"global"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("invest status = %d: %s", rec.Code, rec.Body.String())
	}
	inv := decodeBody[struct {
		FundID string          `json:"fund_id"`
		Amount decimal.Decimal `json:"amount"`
	}](t, rec)
	if inv.FundID != "global" || !inv.Amount.Equal(dec("1.27")) {
		t.Errorf("investment = %+v", inv)
	}

	rec = do(t, srv, http.MethodPost, "/api/roundups/invest", "u1", `{"fund":"global"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second invest status = %d, want 409", rec.Code)
	}
	errBody := decodeBody[ErrorResponse](t, rec)
	if errBody.Code != "insufficient_funds" || errBody.Available == nil || !errBody.Available.IsZero() {
		t.Errorf("error body = %+v", errBody)
	}

	rec = do(t, srv, http.MethodGet, "/api/roundups", "u1", "")
	summary = decodeBody[services.RoundUpSummary](t, rec)
	if !summary.TotalInvested.Equal(dec("1.27")) || !summary.Pool.TotalAvailable.IsZero() || summary.Version != 1 {
		t.Errorf("after invest = %+v", summary)
	}
}

func TestInvestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown fund", `{"fund":"crypto"}`, http.StatusBadRequest, "unknown_fund"},
		{"negative amount", `{"fund":"tech","amount":"-1"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"zero amount", `{"fund":"tech","amount":0}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"more than pool", `{"fund":"tech","amount":"5"}`, http.StatusConflict, "insufficient_funds"},
		{"less than pool", `{"fund":"tech","amount":"0.50"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"stale version", `{"fund":"tech","version":7}`, http.StatusConflict, "stale_state"},
		{"malformed json", `{"fund":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"fund":"tech","extra":true}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newDashboard(nil), Config{})
			rec := do(t, srv, http.MethodPost, "/api/roundups/invest", "u1", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			got := decodeBody[ErrorResponse](t, rec)
			if got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
			if tt.code == "insufficient_funds" && (got.Available == nil || !got.Available.Equal(dec("1.27"))) {
				t.Errorf("available = %v, want 1.27", got.Available)
			}
		})
	}
}

func TestEmergencyFundFlow(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})

	if rec := do(t, srv, http.MethodGet, "/api/emergency-fund", "u1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("before setup status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/emergency-fund/contributions", "u1", `{"amount":"10"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("contribute before setup status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodPut, "/api/emergency-fund", "u1", `{"monthlyExpenses":"0"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero expenses status = %d, want 422", rec.Code)
	}

	rec := do(t, srv, http.MethodPut, "/api/emergency-fund", "u1", `{"monthlyExpenses":"1000","targetMonths":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/emergency-fund/contributions", "u1", `{"amount":"750"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("contribute status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, srv, http.MethodPost, "/api/emergency-fund/contributions", "u1", `{"amount":"0"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero contribution status = %d, want 422", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/emergency-fund", "u1", "")
	view := decodeBody[services.EmergencyFundView](t, rec)
	if !view.State.CurrentAmount.Equal(dec("750")) || !view.State.TargetAmount.Equal(dec("3000")) {
		t.Errorf("state = %+v", view.State)
	}
	if view.Progress != 25 || len(view.Contributions) != 1 {
		t.Errorf("progress = %d contributions = %d", view.Progress, len(view.Contributions))
	}
}

func TestRecommendations(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})
	rec := do(t, srv, http.MethodGet, "/api/recommendations?period=all", "u1", "")
	got := decodeBody[map[string][]advisor.Recommendation](t, rec)
	if recs, ok := got["recommendations"]; !ok || len(recs) != 0 {
		t.Errorf("without advisor = %+v, want empty list", got)
	}

	srv = newTestServer(t, newDashboard(advisor.NewStatic()), Config{})
	rec = do(t, srv, http.MethodGet, "/api/recommendations?period=all", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if recs := decodeBody[map[string][]advisor.Recommendation](t, rec)["recommendations"]; len(recs) == 0 {
		t.Error("expected at least one recommendation")
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		do(t, srv, http.MethodPost, "/api/emergency-fund/contributions", "u1", `{"amount":"1"}`)
	}
	rec := do(t, srv, http.MethodPost, "/api/emergency-fund/contributions", "u1", `{"amount":"1"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if rec := do(t, srv, http.MethodGet, "/api/roundups", "u1", ""); rec.Code != http.StatusOK {
		t.Errorf("reads should not be limited, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newDashboard(nil), Config{})
	if rec := do(t, srv, http.MethodDelete, "/api/roundups", "u1", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
