package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"finboard/internal/banking"
	"finboard/internal/core"
	"finboard/internal/emergency"
	applog "finboard/internal/log"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a domain error to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var insufficient *core.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, core.ErrStaleState):
		return http.StatusConflict, "stale_state"
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, emergency.ErrInvalidTarget),
		errors.Is(err, emergency.ErrInvalidMonths):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, core.ErrUnknownFund):
		return http.StatusBadRequest, "unknown_fund"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, banking.ErrNoSession), errors.Is(err, banking.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return applog.ErrorTypeAuth
	case http.StatusNotFound:
		return applog.ErrorTypeNotFound
	case http.StatusConflict:
		return applog.ErrorTypeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return applog.ErrorTypeValidation
	default:
		return applog.ErrorTypeInternal
	}
}

// writeError maps err and writes it. Internal errors are logged in full and
// reported to the client without detail.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	ctx := r.Context()
	fields := applog.NewFields().WithOperation(op).WithError(err).WithErrorType(errorType(status))

	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		applog.FromContext(ctx).ErrorContext(ctx, "Request failed", fields.ToSlice()...)
		resp.Error = "internal error"
	} else {
		applog.FromContext(ctx).InfoContext(ctx, "Request rejected", fields.ToSlice()...)
	}

	var insufficient *core.InsufficientFundsError
	if errors.As(err, &insufficient) {
		available := insufficient.Available
		resp.Available = &available
	}
	writeJSON(w, status, resp)
}
