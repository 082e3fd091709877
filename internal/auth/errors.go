package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pstu-cpl/cpl/internal/remote"
)

// Failures of the Controller's public operations. Each returned error
// matches exactly one of these with errors.Is.
var (
	ErrAuthenticationFailed     = errors.New("authentication failed")
	ErrProfileNotFound          = errors.New("profile not found")
	ErrProfileCreationFailed    = errors.New("profile creation failed")
	ErrAvatarUploadFailed       = errors.New("avatar upload failed")
	ErrNotAuthenticated         = errors.New("not authenticated")
	ErrRemoteServiceUnavailable = errors.New("remote service unavailable")
)

// ErrInvalidImageData is returned by the avatar uploader for payloads that
// are not inline image data.
var ErrInvalidImageData = errors.New("payload is not inline image data")

func fail(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// classify maps a remote failure to kind, unless it is a connectivity
// failure.
func classify(kind, cause error) error {
	if remote.IsUnavailable(cause) {
		return fail(ErrRemoteServiceUnavailable, cause)
	}
	return fail(kind, cause)
}

// profileFailure maps a failed profile read or write made with the user's
// remote session. A rejected or missing session is reported as denied;
// any other failure means the service could not serve the profile.
func profileFailure(denied, cause error) error {
	if errors.Is(cause, remote.ErrNoSession) || remote.IsStatus(cause, http.StatusUnauthorized, http.StatusForbidden) {
		return fail(denied, cause)
	}
	return fail(ErrRemoteServiceUnavailable, cause)
}
