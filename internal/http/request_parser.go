package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finboard/internal/aggregate"
	"finboard/internal/banking"
)

const (
	// UserIDHeader identifies the caller; authentication happens upstream.
	UserIDHeader = "X-User-ID"

	maxBodyBytes = 64 << 10
	dateLayout   = "2006-01-02"
)

var errBadRequest = errors.New("bad request")

// sessionFromRequest builds the caller's banking session from headers. A
// missing user id yields banking.ErrNoSession; the bearer token is passed
// through for the provider to judge.
func sessionFromRequest(r *http.Request) (banking.Session, error) {
	userID := sanitizeInput(r.Header.Get(UserIDHeader))
	if userID == "" {
		return banking.Session{}, banking.ErrNoSession
	}
	var token string
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return banking.Session{}, fmt.Errorf("%w: Authorization must be a Bearer token", errBadRequest)
		}
		token = strings.TrimSpace(value)
	}
	return banking.NewSession(userID, token), nil
}

// ParsePeriod reads the period query parameters. period defaults to
// this_month; range takes inclusive from/to dates (YYYY-MM-DD), either of
// which may be omitted.
func ParsePeriod(query url.Values, now time.Time) (aggregate.Period, error) {
	switch p := strings.TrimSpace(query.Get("period")); p {
	case "", "this_month":
		return aggregate.ThisMonth(now), nil
	case "previous_month":
		return aggregate.PreviousMonth(now), nil
	case "all":
		return aggregate.RangePeriod{}, nil
	case "range":
		var rp aggregate.RangePeriod
		if v := strings.TrimSpace(query.Get("from")); v != "" {
			from, err := time.ParseInLocation(dateLayout, v, now.Location())
			if err != nil {
				return nil, fmt.Errorf("%w: invalid from date %q", errBadRequest, v)
			}
			rp.Start = from
		}
		if v := strings.TrimSpace(query.Get("to")); v != "" {
			to, err := time.ParseInLocation(dateLayout, v, now.Location())
			if err != nil {
				return nil, fmt.Errorf("%w: invalid to date %q", errBadRequest, v)
			}
			rp.End = to.AddDate(0, 0, 1)
		}
		if !rp.Start.IsZero() && !rp.End.IsZero() && !rp.Start.Before(rp.End) {
			return nil, fmt.Errorf("%w: from must not be after to", errBadRequest)
		}
		return rp, nil
	default:
		return nil, fmt.Errorf("%w: unknown period %q", errBadRequest, p)
	}
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields
// and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s))
}
