package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/websession"
)

// CookieName names the browser session cookie.
const CookieName = "cpl_session"

const sidValue = "sid"

const webSessionKey contextKey = "webSession"

// SessionManager hands out per-browser auth controllers.
type SessionManager interface {
	Acquire(ctx context.Context, sid string) (*websession.Session, error)
	Release(s *websession.Session)
}

// NewCookieStore creates the signed cookie store that carries the browser
// session id.
func NewCookieStore(secret string, secure bool) sessions.Store {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Session binds the request to the browser's auth controller, issuing a
// session cookie on first contact. A cookie that fails verification is
// replaced.
func Session(cookies sessions.Store, mgr SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			sess, err := cookies.Get(r, CookieName)
			if err != nil {
				slog.Debug("session: discarding unreadable cookie", "error", err, "requestId", requestID)
			}
			sid, _ := sess.Values[sidValue].(string)
			if _, perr := uuid.Parse(sid); perr != nil {
				sid = uuid.New().String()
				sess.Values[sidValue] = sid
				if err := sess.Save(r, w); err != nil {
					slog.Error("session: failed to issue cookie", "error", err, "requestId", requestID)
					response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to start session", requestID)
					return
				}
			}

			ws, err := mgr.Acquire(r.Context(), sid)
			if err != nil {
				slog.Error("session: failed to acquire controller", "error", err, "requestId", requestID)
				response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Session is unavailable", requestID)
				return
			}
			defer mgr.Release(ws)

			ctx := context.WithValue(r.Context(), webSessionKey, ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWebSession returns the browser session bound by Session, or nil.
func GetWebSession(ctx context.Context) *websession.Session {
	ws, _ := ctx.Value(webSessionKey).(*websession.Session)
	return ws
}

// WithWebSession returns a copy of ctx carrying ws.
func WithWebSession(ctx context.Context, ws *websession.Session) context.Context {
	return context.WithValue(ctx, webSessionKey, ws)
}
