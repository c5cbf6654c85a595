package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeCodedError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleServiceError maps domain errors to HTTP responses. Integrity and
// persistence faults get a distinct code so clients never mistake them for
// bad credentials or bad input.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var payment *domain.ErrPaymentNotConfirmed
	var rollback *domain.ErrRollback
	var persistence *domain.ErrPersistence
	var integrity *domain.ErrIntegrity
	var duplicate *domain.ErrDuplicate
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &payment):
		logger.Warn("payment not confirmed", zap.String("reason", payment.Reason))
		writeCodedError(w, http.StatusPaymentRequired, "payment_not_confirmed", err.Error())
	case errors.As(err, &integrity):
		logger.Error("integrity violation",
			zap.String("kind", string(integrity.Kind)),
			zap.String("key", integrity.Key),
			zap.String("record_id", integrity.RecordID),
		)
		writeCodedError(w, http.StatusInternalServerError, "integrity_violation", err.Error())
	case errors.As(err, &rollback):
		logger.Error("rollback failed", zap.Strings("keys", rollback.Keys), zap.Error(err))
		writeCodedError(w, http.StatusServiceUnavailable, "rollback_failed", "storage unavailable")
	case errors.As(err, &persistence):
		logger.Error("persistence failure",
			zap.String("op", persistence.Op),
			zap.String("key", persistence.Key),
			zap.Error(persistence.Err),
		)
		writeCodedError(w, http.StatusServiceUnavailable, "persistence_failure", "storage unavailable")
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &duplicate):
		logger.Debug("duplicate resource", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeCodedError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
