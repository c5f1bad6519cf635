package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/analytics"
	"github.com/Simplici0/filaprint/internal/ledger"
	"github.com/Simplici0/filaprint/internal/printer"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/pricing"
	"github.com/Simplici0/filaprint/internal/spool"
	"github.com/Simplici0/filaprint/internal/user"
)

const (
	reasonMissing         = "missing"
	reasonInvalid         = "invalid"
	reasonMismatch        = "mismatch"
	reasonWeak            = "weak"
	reasonExists          = "exists"
	reasonTaken           = "taken"
	reasonSpoolNotFound   = "spoolNotFound"
	reasonPrinterNotFound = "printerNotFound"
	reasonNotFound        = "notFound"
	reasonUndefinedCost   = "undefinedCost"
	reasonUnauthorized    = "unauthorized"
	reasonDBError         = "dbError"
)

// failure is the body of every error response. Success is always false.
type failure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Field   string `json:"field,omitempty"`
}

// validationError is returned by the form parsers and rendered as 400.
type validationError struct {
	Field  string
	Reason string
}

func (e *validationError) Error() string {
	return e.Field + ": " + e.Reason
}

func missing(field string) error {
	return &validationError{Field: field, Reason: reasonMissing}
}

func invalid(field string) error {
	return &validationError{Field: field, Reason: reasonInvalid}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess merges fields into a {"success":true} body.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError maps domain errors to status codes and reason tags.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, failure{Reason: verr.Reason, Field: verr.Field})
	case errors.Is(err, analytics.ErrInvalidWindow):
		writeJSON(w, http.StatusBadRequest, failure{Reason: reasonInvalid, Field: "range"})
	case errors.Is(err, printjob.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, failure{Reason: reasonInvalid, Field: "status"})
	case errors.Is(err, printjob.ErrSpoolNotFound), errors.Is(err, ledger.ErrSpoolNotFound):
		writeJSON(w, http.StatusNotFound, failure{Reason: reasonSpoolNotFound})
	case errors.Is(err, printjob.ErrPrinterNotFound):
		writeJSON(w, http.StatusNotFound, failure{Reason: reasonPrinterNotFound})
	case errors.Is(err, printjob.ErrNotFound),
		errors.Is(err, spool.ErrNotFound),
		errors.Is(err, printer.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeJSON(w, http.StatusNotFound, failure{Reason: reasonNotFound})
	case errors.Is(err, pricing.ErrZeroSpoolWeight):
		writeJSON(w, http.StatusUnprocessableEntity, failure{Reason: reasonUndefinedCost})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, failure{Reason: reasonDBError})
	}
}
