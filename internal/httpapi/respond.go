package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

type errorBody struct {
	RequestID string      `json:"request_id"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type warningView struct {
	Rule    string `json:"rule"`
	Lot     string `json:"lot"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{
		RequestID: RequestIDFrom(r.Context()),
		Error:     errorDetail{Code: code, Message: message, Details: details},
	})
}

// writeLedgerError maps a service failure to its HTTP status and error code.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked core.RuleViolationError
	if errors.As(err, &blocked) {
		writeError(w, r, http.StatusConflict, "RULE_VIOLATION", err.Error(), warningsOf(blocked.Result.Violations))
		return
	}
	code := domain.KindName(err)
	writeError(w, r, statusForKind(domain.KindOf(err)), code, err.Error(), nil)
}

func statusForKind(kind error) int {
	switch kind {
	case domain.ErrInvalidKey, domain.ErrInvalidRole:
		return http.StatusBadRequest
	case domain.ErrUnauthorized:
		return http.StatusForbidden
	case domain.ErrUnknownLot, domain.ErrInvalidToken:
		return http.StatusNotFound
	case domain.ErrDuplicateLot, domain.ErrDuplicateBadge, domain.ErrInvalidTransition:
		return http.StatusConflict
	case domain.ErrUnsupportedStage:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func warningsOf(violations []domain.Violation) []warningView {
	out := make([]warningView, 0, len(violations))
	for _, v := range violations {
		out = append(out, warningView{Rule: v.Rule, Lot: v.EntityID, Message: v.Message})
	}
	return out
}
