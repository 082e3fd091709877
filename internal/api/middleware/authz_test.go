package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/remote/remotetest"
	"github.com/pstu-cpl/cpl/internal/websession"
)

// --- Helpers ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// browserSession returns a started session for a fresh browser.
func browserSession(t *testing.T) *websession.Session {
	t.Helper()
	srv := remotetest.New()
	mgr := websession.NewManager(websession.Options{Remote: srv.Config(), AvatarBucket: "avatars", IdleTTL: time.Minute})
	t.Cleanup(mgr.Close)

	ws, err := mgr.Acquire(context.Background(), "browser-1")
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Release(ws) })
	return ws
}

func serveGuarded(ws *websession.Session, roles ...auth.Role) *httptest.ResponseRecorder {
	handler := middleware.RequireRole(auth.DefaultPolicy(), roles...)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if ws != nil {
		req = req.WithContext(middleware.WithWebSession(req.Context(), ws))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

// ===== RequireRole =====

func TestRequireRole_NoSession(t *testing.T) {
	t.Parallel()

	w := serveGuarded(nil, auth.RolePlayer)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
}

func TestRequireRole_HoldsWhileResolving(t *testing.T) {
	t.Parallel()

	ws := &websession.Session{Controller: auth.NewController(nil, nil, nil, nil)}

	w := serveGuarded(ws, auth.RolePlayer)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRequireRole_RedirectsSignedOut(t *testing.T) {
	t.Parallel()

	w := serveGuarded(browserSession(t), auth.RolePlayer)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth", w.Header().Get("Location"))
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
}

func TestRequireRole_AllowsAndForbids(t *testing.T) {
	t.Parallel()

	ws := browserSession(t)
	_, err := ws.Controller.Register(context.Background(), auth.RegisterInput{
		Name: "Asha", Email: "asha@pstu.ac.bd", Password: "secret1",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serveGuarded(ws, auth.RolePlayer, auth.RoleAdmin).Code)
	assert.Equal(t, http.StatusOK, serveGuarded(ws).Code, "no roles admits any signed-in user")

	w := serveGuarded(ws, auth.RoleAdmin)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))
}
