package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bookstore/internal/errs"
	"bookstore/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a transport-level failure that has no domain error behind it.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStatus(status),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeErr maps a domain error to its status. Untyped errors are store failures.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.StoreFailure(err)
	}
	if e.Code == errs.CodeStoreFailure {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, e.HTTPStatus(), errorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
		Details:   e.Details,
	})
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(errs.CodeValidation)
	case http.StatusUnauthorized:
		return string(errs.CodeUnauthenticated)
	case http.StatusForbidden:
		return string(errs.CodeForbidden)
	case http.StatusNotFound:
		return string(errs.CodeNotFound)
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return string(errs.CodeRateLimited)
	default:
		if status >= http.StatusInternalServerError {
			return string(errs.CodeStoreFailure)
		}
		return "REQUEST_ERROR"
	}
}
