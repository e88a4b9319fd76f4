package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/logging"
)

// Stable error codes returned in the error_code field.
const (
	CodeAuthRequired     = "AUTH_REQUIRED"
	CodeAuthInvalid      = "AUTH_INVALID"
	CodeSchoolRequired   = "SCHOOL_REQUIRED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errInvalidDate    = errors.New("date must be formatted YYYY-MM-DD")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: CodeInternal, Message: "internal server error"})
		return
	}

	switch {
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: CodeAuthInvalid,
			Message:   "invalid username, email or password",
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: CodeAuthRequired, Message: "authentication required"})
	case errors.Is(err, application.ErrSchoolRequired):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: CodeSchoolRequired, Message: "join a school to continue"})
	case errors.Is(err, application.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: CodeForbidden, Message: "you may not perform this action"})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: CodeNotFound, Message: "resource not found"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: CodeConflict, Message: detail(err, application.ErrAlreadyExists, "resource already exists")})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: CodeConflict, Message: detail(err, application.ErrConflict, "resource state conflict")})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				ErrorCode: CodeValidationFailed,
				Message:   "request validation failed",
				Errors:    vErr.FieldErrors,
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: CodeInternal, Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error, fallback string) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error())
	msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
	if msg == "" {
		return fallback
	}
	return msg
}

// decodeJSON decodes a single JSON object from the request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
