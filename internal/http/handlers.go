package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/aggregate"
	"finboard/internal/banking"
	applog "finboard/internal/log"
	"finboard/internal/roundup"
	"finboard/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports not_ready while the store is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{}
	status, httpStatus := "ready", http.StatusOK
	if err := s.svc.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	traffic := s.tracer.GetMetrics()
	checks["http"] = map[string]any{
		"total_requests": traffic.TotalRequests,
		"server_errors":  traffic.ServerErrors,
	}
	limits := s.limiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": limits.ClientCount,
		"limited":        limits.TotalHits,
	}
	checks["security"] = map[string]any{
		"suspicious_requests": s.detector.GetMetrics().SuspiciousRequests,
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// periodHandler is the shape shared by the spending endpoints.
func (s *Server) periodHandler(op string, fn func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromRequest(r)
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		period, err := ParsePeriod(r.URL.Query(), s.now())
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		out, err := fn(r.Context(), sess, period)
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	s.periodHandler(applog.OpRead, func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error) {
		return s.svc.Spending(ctx, sess, p)
	})(w, r)
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	s.periodHandler(applog.OpRead, func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error) {
		return s.svc.Income(ctx, sess, p)
	})(w, r)
}

func (s *Server) handleSpendingByMonth(w http.ResponseWriter, r *http.Request) {
	s.periodHandler(applog.OpRead, func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error) {
		months, err := s.svc.SpendingByMonth(ctx, sess, p)
		return map[string]any{"months": months}, err
	})(w, r)
}

func (s *Server) handleSpendingByAccount(w http.ResponseWriter, r *http.Request) {
	s.periodHandler(applog.OpRead, func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error) {
		accounts, err := s.svc.SpendingByAccount(ctx, sess, p)
		return map[string]any{"accounts": accounts}, err
	})(w, r)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.periodHandler(applog.OpRecommend, func(ctx context.Context, sess banking.Session, p aggregate.Period) (any, error) {
		recs, err := s.svc.Recommendations(ctx, sess, p)
		return map[string]any{"recommendations": recs}, err
	})(w, r)
}

func (s *Server) handleRoundUps(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromRequest(r)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	summary, err := s.svc.RoundUps(r.Context(), sess)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type investRequest struct {
	Fund    string           `json:"fund"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Version int64            `json:"version,omitempty"`
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromRequest(r)
	if err != nil {
		writeError(w, r, applog.OpInvest, err)
		return
	}
	var body investRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, applog.OpInvest, err)
		return
	}

	inv, err := s.svc.Invest(r.Context(), sess, services.InvestRequest{
		FundID:          roundup.FundID(sanitizeInput(body.Fund)),
		Amount:          body.Amount,
		ExpectedVersion: body.Version,
	})
	if err != nil {
		writeError(w, r, applog.OpInvest, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Round-ups invested",
		applog.NewFields().
			WithUser(sess.UserID).
			WithMovement(string(inv.FundID), inv.Amount).
			WithOperation(applog.OpInvest).
			ToSlice()...)
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleEmergencyFund(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromRequest(r)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	view, err := s.svc.EmergencyFund(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type setupRequest struct {
	MonthlyExpenses decimal.Decimal `json:"monthlyExpenses"`
	TargetMonths    int             `json:"targetMonths,omitempty"`
}

func (s *Server) handleSetupEmergencyFund(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromRequest(r)
	if err != nil {
		writeError(w, r, applog.OpSetup, err)
		return
	}
	var body setupRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, applog.OpSetup, err)
		return
	}
	state, err := s.svc.SetupEmergencyFund(r.Context(), sess.UserID, body.MonthlyExpenses, body.TargetMonths)
	if err != nil {
		writeError(w, r, applog.OpSetup, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type contributeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromRequest(r)
	if err != nil {
		writeError(w, r, applog.OpContribute, err)
		return
	}
	var body contributeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, applog.OpContribute, err)
		return
	}
	state, contrib, err := s.svc.Contribute(r.Context(), sess.UserID, body.Amount)
	if err != nil {
		writeError(w, r, applog.OpContribute, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Emergency fund contribution",
		applog.NewFields().
			WithUser(sess.UserID).
			WithMovement("", contrib.Amount).
			WithOperation(applog.OpContribute).
			ToSlice()...)
	writeJSON(w, http.StatusCreated, map[string]any{
		"state":        state,
		"contribution": contrib,
	})
}
