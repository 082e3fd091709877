package middleware

import (
	"net/http"

	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/auth"
)

// RequireRole returns middleware that admits only sessions the route guard
// allows for roles. While the session is still being resolved it answers
// 204 so the client retries; otherwise a refusal is a 303 to the sign-in
// path or to the caller's landing page.
func RequireRole(policy auth.Policy, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			ws := GetWebSession(r.Context())
			if ws == nil {
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Session is required", requestID)
				return
			}

			d := auth.Guard(ws.Controller.Snapshot(), policy, roles...)
			guardDecisionsTotal.WithLabelValues(d.Action.String()).Inc()

			switch d.Action {
			case auth.Allow:
				next.ServeHTTP(w, r)
			case auth.Hold:
				w.Header().Set("Retry-After", "1")
				response.NoContent(w)
			case auth.Redirect:
				if d.SignedIn {
					response.Redirect(w, d.Location, response.CodeForbidden, "Insufficient permissions", requestID)
					return
				}
				response.Redirect(w, d.Location, response.CodeUnauthorized, "Sign in required", requestID)
			}
		})
	}
}
