package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "finboard/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if _, ok := r.Context().Value(applog.LoggerContextKey).(*applog.Logger); !ok {
			t.Error("expected request-scoped logger in context")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/roundups", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), seen)
	}
	if got := m.GetMetrics(); got.TotalRequests != 1 || got.ServerErrors != 1 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestMiddleware_HonoursIncomingRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"safe id", "abc-123_X.y", true},
		{"header injection", "abc\r\nSet-Cookie: x", false},
		{"spaces", "two words", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			r.Header[RequestIDHeader] = []string{tt.incoming}
			h.ServeHTTP(httptest.NewRecorder(), r)

			if (seen == tt.incoming) != tt.keep {
				t.Errorf("request id = %q, keep = %v", seen, tt.keep)
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusTeapot)
	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rw.statusCode)
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
