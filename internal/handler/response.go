package handler

// RESPONSE ENVELOPE:
// Every endpoint answers with the same shape:
//
//	{"success": true,  "status": "OK",    "message": "Friend request sent", "data": {...}}
//	{"success": false, "status": "ERROR", "message": "User not found",      "data": null}
//
// Handlers never build that by hand. They call writeOK/writeCreated on
// success and writeError with whatever the service returned.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/auth"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// M is shorthand for the small keyed objects handlers put in Data.
type M map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Status: "OK", Message: message, Data: data})
}

func writeCreated(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Status: "OK", Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Status: "ERROR", Message: message})
}

// writeError maps a service error to a status code.
//
//	ErrValidation   → 400     ErrNotFound → 404
//	ErrUnauthorized → 401     ErrConflict → 409
//	ErrForbidden    → 403     ErrDelivery → 502
//	deadline exceeded → 503, anything else → 500
//
// Only AppError messages reach the client. Everything else is logged with
// the request id and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrDelivery):
			status = http.StatusBadGateway
		}
		if appErr.Cause != nil {
			logger.Warn("request failed",
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
				slog.String("message", appErr.Message),
				slog.String("cause", appErr.Cause.Error()),
			)
		}
		writeFailure(w, status, appErr.Message)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request timed out",
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeFailure(w, http.StatusServiceUnavailable, "The request timed out, please retry")
		return
	}

	logger.Error("unhandled error",
		slog.String("requestID", chimiddleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeFailure(w, http.StatusInternalServerError, "An internal error occurred")
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched so required-field checks produce their own messages.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("", "Request body is too large")
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}

// currentUserID returns the id RequireAuth stored. Routes using it are always
// mounted behind the middleware.
func currentUserID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// int64Param parses a numeric path parameter.
func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// intQuery parses an optional integer query parameter. Missing or malformed
// values yield 0 so the service applies its default.
func intQuery(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
