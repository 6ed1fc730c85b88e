// Package http serves the finance dashboard JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/advisor"
	"finboard/internal/aggregate"
	"finboard/internal/banking"
	"finboard/internal/core"
	"finboard/internal/emergency"
	applog "finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/roundup"
	"finboard/internal/services"
)

// Dashboard is the application service behind the API.
type Dashboard interface {
	Spending(ctx context.Context, sess banking.Session, period aggregate.Period) (services.SpendingSummary, error)
	Income(ctx context.Context, sess banking.Session, period aggregate.Period) (services.SpendingSummary, error)
	SpendingByMonth(ctx context.Context, sess banking.Session, period aggregate.Period) ([]core.GroupTotal, error)
	SpendingByAccount(ctx context.Context, sess banking.Session, period aggregate.Period) ([]core.GroupTotal, error)
	RoundUps(ctx context.Context, sess banking.Session) (services.RoundUpSummary, error)
	Invest(ctx context.Context, sess banking.Session, req services.InvestRequest) (roundup.Investment, error)
	EmergencyFund(ctx context.Context, userID string) (services.EmergencyFundView, error)
	SetupEmergencyFund(ctx context.Context, userID string, monthlyExpenses decimal.Decimal, months int) (emergency.State, error)
	Contribute(ctx context.Context, userID string, amount decimal.Decimal) (emergency.State, emergency.Contribution, error)
	Recommendations(ctx context.Context, sess banking.Session, period aggregate.Period) ([]advisor.Recommendation, error)
	Ping(ctx context.Context) error
}

var _ Dashboard = (*services.DashboardService)(nil)

type Config struct {
	Addr               string
	RateLimitPerMinute int
	// BlockSuspicious rejects requests the detector flags instead of only
	// logging them.
	BlockSuspicious bool
	Logger          *applog.Logger
}

type Server struct {
	http.Server
	svc       Dashboard
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	startedAt time.Time
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to stop it and its background goroutines.
func NewServer(cfg Config, svc Dashboard) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		svc:       svc,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP),
		startedAt: time.Now(),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/spending", s.handleSpending)
	mux.HandleFunc("GET /api/spending/monthly", s.handleSpendingByMonth)
	mux.HandleFunc("GET /api/spending/accounts", s.handleSpendingByAccount)
	mux.HandleFunc("GET /api/income", s.handleIncome)

	mux.HandleFunc("GET /api/roundups", s.handleRoundUps)
	mux.HandleFunc("POST /api/roundups/invest", s.handleInvest)

	mux.HandleFunc("GET /api/emergency-fund", s.handleEmergencyFund)
	mux.HandleFunc("PUT /api/emergency-fund", s.handleSetupEmergencyFund)
	mux.HandleFunc("POST /api/emergency-fund/contributions", s.handleContribute)

	mux.HandleFunc("GET /api/recommendations", s.handleRecommendations)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost, http.MethodPut)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(cfg.BlockSuspicious)(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error: "rate limit exceeded, try again later",
		Code:  "rate_limited",
	})
}
