package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/api/validation"
	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/websession"
)

// maxBodyBytes bounds request bodies. Registration carries an inline
// avatar, so it is larger than a plain form would need.
const maxBodyBytes = 8 << 20

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false when the body is unusable.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", requestID)
		return false
	}

	if fieldErrors := validation.Struct(dst); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return false
	}
	return true
}

// webSession returns the request's browser session, writing a 401 when the
// route was mounted without the session middleware.
func webSession(w http.ResponseWriter, r *http.Request) (*websession.Session, bool) {
	ws := middleware.GetWebSession(r.Context())
	if ws == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Session is required", middleware.GetRequestID(r.Context()))
		return nil, false
	}
	return ws, true
}

// writeAuthError maps a controller failure to a response.
func writeAuthError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Sign in required", requestID)
	case errors.Is(err, auth.ErrAuthenticationFailed):
		response.Err(w, http.StatusUnauthorized, response.CodeAuthFailed, remoteMessage(err, "Authentication failed"), requestID)
	case errors.Is(err, auth.ErrProfileNotFound):
		response.Err(w, http.StatusNotFound, response.CodeProfileNotFound, "No profile exists for this account", requestID)
	case errors.Is(err, auth.ErrProfileCreationFailed):
		slog.Error("auth: profile creation failed", "op", op, "error", err, "requestId", requestID)
		response.Err(w, http.StatusBadGateway, response.CodeProfileCreation, "Failed to create profile", requestID)
	case errors.Is(err, auth.ErrAvatarUploadFailed):
		slog.Warn("auth: avatar upload failed", "op", op, "error", err, "requestId", requestID)
		response.Err(w, http.StatusBadGateway, response.CodeUploadFailed, "Failed to upload avatar", requestID)
	case errors.Is(err, auth.ErrRemoteServiceUnavailable):
		slog.Error("auth: remote service unavailable", "op", op, "error", err, "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Identity service is unavailable", requestID)
	default:
		slog.Error("auth: unexpected failure", "op", op, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
	}
}

// writeRemoteError maps a failed rows or storage call to a response.
func writeRemoteError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case remote.IsStatus(err, http.StatusUnauthorized, http.StatusForbidden), errors.Is(err, remote.ErrNoSession):
		response.Err(w, http.StatusForbidden, response.CodeForbidden, remoteMessage(err, "Not permitted"), requestID)
	case remote.IsStatus(err, http.StatusConflict):
		response.Err(w, http.StatusConflict, response.CodeConflict, remoteMessage(err, "Conflict"), requestID)
	case remote.IsStatus(err, http.StatusBadRequest, http.StatusUnprocessableEntity):
		response.Err(w, http.StatusBadRequest, response.CodeValidation, remoteMessage(err, "Rejected by the data service"), requestID)
	default:
		slog.Error("remote: request failed", "op", op, "error", err, "requestId", requestID)
		response.Err(w, http.StatusBadGateway, response.CodeBadGateway, "Data service request failed", requestID)
	}
}

func remoteMessage(err error, fallback string) string {
	var rerr *remote.Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return fallback
}
