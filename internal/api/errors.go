package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/ingest"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable values of Error.Code.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeToolFailed   = "rrdtool_failed"
	ErrCodeTimeout      = "timeout"
	ErrCodeUnavailable  = "service_unavailable"
	ErrCodeInternal     = "internal_error"
)

// writeJSON encodes v as the response body. A nil v sends headers only.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Headers are already sent
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized also sets WWW-Authenticate, as RFC 6750 requires.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="rrdcore"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps errors from the rrdtool, catalog and ingest packages
// onto HTTP statuses. Unrecognised errors are logged and reported as 500
// without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var exitErr *process.ExitError
	switch {
	case errors.Is(err, rrdtool.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeNotFound(w, "database not found")
	case errors.Is(err, rrdtool.ErrExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "database already exists")
	case errors.Is(err, rrdtool.ErrUnknownDataSource),
		errors.Is(err, rrdtool.ErrInvalidName),
		errors.Is(err, rrdtool.ErrInvalidDefinition),
		errors.Is(err, rrdtool.ErrInvalidConsolidation),
		errors.Is(err, rrdtool.ErrNoValues),
		errors.Is(err, ingest.ErrInvalidMessage),
		errors.Is(err, catalog.ErrInvalidEntry):
		writeBadRequest(w, err.Error())
	case errors.As(err, &exitErr):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeToolFailed, exitErr.Message)
	case errors.Is(err, process.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "rrdtool did not finish in time")
	case errors.Is(err, rrdtool.ErrClosed), errors.Is(err, process.ErrNotFound):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
