package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/store"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnknownApp     = "UNKNOWN_APP"
	CodeNotFound       = "NOT_FOUND"
	CodeSeqConflict    = "SEQ_CONFLICT"
	CodeBudgetExceeded = "BUDGET_EXCEEDED"
	CodeNotSettled     = "NOT_SETTLED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeCanceled       = "CANCELED"
	CodeInternal       = "INTERNAL"
)


// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	HookID  string `json:"hook_id,omitempty"`
}

// classify maps an error to a status and body. Render errors keep their
// engine code.
func classify(err error) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}
	var rerr *engine.RenderError
	switch {
	case errors.Is(err, host.ErrUnknownApp):
		body.Code = CodeUnknownApp
		return http.StatusNotFound, body
	case errors.Is(err, store.ErrNotFound):
		body.Code = CodeNotFound
		return http.StatusNotFound, body
	case errors.Is(err, store.ErrSeqConflict):
		body.Code = CodeSeqConflict
		return http.StatusConflict, body
	case engine.IsBudgetExceeded(err):
		body.Code = CodeBudgetExceeded
		return http.StatusRequestEntityTooLarge, body
	case errors.Is(err, host.ErrNotSettled):
		body.Code = CodeNotSettled
		return http.StatusServiceUnavailable, body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		body.Code = CodeCanceled
		return http.StatusServiceUnavailable, body
	case errors.As(err, &rerr):
		body.Code = string(rerr.Code)
		body.HookID = string(rerr.HookID)
		return http.StatusUnprocessableEntity, body
	}
	body.Code = CodeInternal
	return http.StatusInternalServerError, body
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "code", body.Code)
	} else {
		s.logger.Debug("request rejected", "error", err, "code", body.Code)
	}
	writeJSON(w, status, body)
}
