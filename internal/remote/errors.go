package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable marks transport or configuration failures talking to the
// remote service, as opposed to a response the service chose to send.
var ErrUnavailable = errors.New("remote service unavailable")

// ErrNoSession is returned by operations that need an authenticated session
// when the client holds none.
var ErrNoSession = errors.New("no active remote session")

// Error is a non-2xx response from the remote service.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *Error with one of the given statuses.
func IsStatus(err error, statuses ...int) bool {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return false
	}
	for _, s := range statuses {
		if rerr.Status == s {
			return true
		}
	}
	return false
}

// IsUnavailable reports whether err is a transport failure or a 5xx response.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Status >= http.StatusInternalServerError
}

// parseError builds an *Error from a response body. The auth, rows and
// storage APIs each shape their error bodies differently.
func parseError(status int, body []byte) error {
	e := &Error{Status: status}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		e.Message = http.StatusText(status)
		if len(body) > 0 && len(body) < 512 {
			e.Message = string(body)
		}
		return e
	}

	for _, key := range []string{"error_code", "code", "error"} {
		if v, ok := fields[key]; ok && e.Code == "" {
			switch tv := v.(type) {
			case string:
				e.Code = tv
			case float64:
				e.Code = fmt.Sprintf("%d", int(tv))
			}
		}
	}
	for _, key := range []string{"msg", "message", "error_description"} {
		if v, ok := fields[key].(string); ok && v != "" {
			e.Message = v
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
