package web

// errors.go renders every error response of the web layer.
//
// The technical error is logged with the request ID. The client receives the
// mapped core.UserMessage so codes stay stable across drivers.

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/JonMunkholm/catalog-import/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	errNameRequired = errors.New("file name is required")
	errNotCSV       = errors.New("only csv files are allowed")
	errRateLimited  = errors.New("rate limit exceeded")
)

// respondError logs err and writes its user-facing form with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userErr := core.NewUserError(err)
	userMsg := userErr.User

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", userErr.Technical.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	writeJSON(w, r, statusCode, ErrorResponse{
		Error:   userErr.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// parseStatus picks the status for a failed parse. Files that can never
// parse get 422; anything else is treated as transient.
func parseStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyParses):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrMalformedFile), errors.Is(err, core.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	respondError(w, r, fmt.Errorf("%w for %s", errRateLimited, r.RemoteAddr), http.StatusTooManyRequests)
}
