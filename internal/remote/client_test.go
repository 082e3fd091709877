package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/remote/remotetest"
	"github.com/pstu-cpl/cpl/internal/session"
)

// --- Helpers ---

func newClient(t *testing.T, srv *remotetest.Server, tokens session.Store) *remote.Client {
	t.Helper()
	c, err := remote.NewClient(srv.Config(), tokens)
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, c *remote.Client) <-chan remote.AuthChange {
	t.Helper()
	ch := make(chan remote.AuthChange, 16)
	sub := c.OnAuthStateChange(func(change remote.AuthChange) { ch <- change })
	t.Cleanup(sub.Unsubscribe)
	return ch
}

func nextEvent(t *testing.T, ch <-chan remote.AuthChange) remote.AuthChange {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth change")
		return remote.AuthChange{}
	}
}

// ===== NewClient =====

func TestNewClient_RequiresURLAndKey(t *testing.T) {
	t.Parallel()

	_, err := remote.NewClient(remote.Config{AnonKey: "k"}, nil)
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	_, err = remote.NewClient(remote.Config{URL: "http://x"}, nil)
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}

// ===== Auth =====

func TestSignInWithPassword_Success(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	id := srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	events := collect(t, c)

	s, err := c.SignInWithPassword(context.Background(), "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id, s.User.ID)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	assert.False(t, s.Expiry().IsZero())

	change := nextEvent(t, events)
	assert.Equal(t, remote.EventSignedIn, change.Event)
	require.NotNil(t, change.Session)
	assert.Equal(t, id, change.Session.User.ID)
}

func TestSignInWithPassword_BadCredentials(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)

	_, err := c.SignInWithPassword(context.Background(), "asha@pstu.ac.bd", "wrong")
	require.Error(t, err)
	assert.True(t, remote.IsStatus(err, http.StatusBadRequest))
	assert.False(t, remote.IsUnavailable(err))

	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "invalid_credentials", rerr.Code)
	assert.Equal(t, "Invalid login credentials", rerr.Message)
}

func TestSignInWithPassword_ServiceDown(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.Down.Store(true)
	c := newClient(t, srv, nil)

	_, err := c.SignInWithPassword(context.Background(), "asha@pstu.ac.bd", "secret1")
	require.Error(t, err)
	assert.True(t, remote.IsUnavailable(err))
}

func TestSignUp_WithAndWithoutSession(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	c := newClient(t, srv, nil)
	ctx := context.Background()

	res, err := c.SignUp(ctx, "asha@pstu.ac.bd", "secret1", map[string]any{"name": "Asha"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "Asha", res.User.UserMetadata["name"])

	srv.SignUpWithoutSession.Store(true)
	other := newClient(t, srv, nil)
	res, err = other.SignUp(ctx, "rafi@pstu.ac.bd", "secret1", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.NotEmpty(t, res.User.ID)

	s, err := other.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)

	_, err := c.SignUp(context.Background(), "asha@pstu.ac.bd", "secret1", nil)
	assert.True(t, remote.IsStatus(err, http.StatusUnprocessableEntity))
}

func TestSignOut_IsIdempotent(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)
	events := collect(t, c)

	require.NoError(t, c.SignOut(ctx))
	require.NoError(t, c.SignOut(ctx))

	assert.Equal(t, remote.EventSignedOut, nextEvent(t, events).Event)
	assert.Equal(t, remote.EventSignedOut, nextEvent(t, events).Event)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetSession_PersistsAcrossClients(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	id := srv.AddAccount("asha@pstu.ac.bd", "secret1")
	tokens := session.NewMemoryStore()
	ctx := context.Background()

	_, err := newClient(t, srv, tokens).SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	s, err := newClient(t, srv, tokens).GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, id, s.User.ID)
}

func TestGetSession_RefreshesExpiringToken(t *testing.T) {
	t.Parallel()

	srv := remotetest.New(remotetest.WithTokenTTL(10 * time.Second))
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()

	first, err := c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)
	events := collect(t, c)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NotEqual(t, first.RefreshToken, s.RefreshToken)
	assert.Equal(t, remote.EventTokenRefreshed, nextEvent(t, events).Event)
}

func TestGetSession_RejectedRefreshSignsOut(t *testing.T) {
	t.Parallel()

	srv := remotetest.New(remotetest.WithTokenTTL(10 * time.Second))
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	tokens := session.NewMemoryStore()
	ctx := context.Background()

	_, err := newClient(t, srv, tokens).SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	raw, err := tokens.Get(ctx, "sb-auth-token")
	require.NoError(t, err)
	var stale remote.Session
	require.NoError(t, json.Unmarshal(raw, &stale))
	stale.RefreshToken = "revoked"
	raw, err = json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, tokens.Set(ctx, "sb-auth-token", raw))

	c := newClient(t, srv, tokens)
	events := collect(t, c)
	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, remote.EventSignedOut, nextEvent(t, events).Event)

	_, err = tokens.Get(ctx, "sb-auth-token")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()

	err := c.UpdatePassword(ctx, "secret2")
	assert.ErrorIs(t, err, remote.ErrNoSession)

	_, err = c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.UpdatePassword(ctx, "secret2"))

	_, err = newClient(t, srv, nil).SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret2")
	assert.NoError(t, err)
}

func TestResetPasswordForEmail(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	c := newClient(t, srv, nil)

	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "asha@pstu.ac.bd"))
	assert.Equal(t, []string{"asha@pstu.ac.bd"}, srv.Recoveries())
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)

	ch := make(chan remote.AuthChange, 4)
	sub := c.OnAuthStateChange(func(change remote.AuthChange) { ch <- change })
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	select {
	case change := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %v", change.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

// ===== Rows =====

func TestQuery_FiltersOrdersAndLimits(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.Seed("matches",
		map[string]any{"id": 1, "tournament_id": "t1", "match_no": 2},
		map[string]any{"id": 2, "tournament_id": "t1", "match_no": 1},
		map[string]any{"id": 3, "tournament_id": "t2", "match_no": 3},
	)
	c := newClient(t, srv, nil)

	var rows []struct {
		ID      int `json:"id"`
		MatchNo int `json:"match_no"`
	}
	err := c.From("matches").Select("id,match_no").Eq("tournament_id", "t1").Order("match_no", true).Execute(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].ID)
	assert.Equal(t, 1, rows[1].ID)

	rows = nil
	err = c.From("matches").Order("match_no", false).Limit(1).Execute(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].ID)
}

func TestQuery_SingleNotFound(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	c := newClient(t, srv, nil)

	var row map[string]any
	found, err := c.From("profiles").Eq("id", "missing").Single(context.Background(), &row)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQuery_UpsertMergesAndUpdates(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	id := srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()
	_, err := c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, c.From("profiles").Upsert(ctx, map[string]any{"id": id, "name": "Asha"}, "id", &out))
	require.Len(t, out, 1)

	out = nil
	require.NoError(t, c.From("profiles").Upsert(ctx, map[string]any{"id": id, "semester": "4th"}, "id", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Asha", out[0]["name"])
	assert.Equal(t, "4th", out[0]["semester"])

	require.NoError(t, c.From("profiles").Eq("id", id).Update(ctx, map[string]any{"name": "Asha R"}, nil))
	rows := srv.Rows("profiles")
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha R", rows[0]["name"])

	require.NoError(t, c.From("profiles").Eq("id", id).Delete(ctx))
	assert.Empty(t, srv.Rows("profiles"))
}

func TestQuery_WriteRequiresSession(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	c := newClient(t, srv, nil)

	err := c.From("profiles").Insert(context.Background(), map[string]any{"id": "x"}, nil)
	assert.True(t, remote.IsStatus(err, http.StatusUnauthorized))
}

func TestOne_DecodesEveryShape(t *testing.T) {
	t.Parallel()

	type profile struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"object", `{"name":"Asha"}`, "Asha", true},
		{"array", `[{"name":"Rafi"},{"name":"x"}]`, "Rafi", true},
		{"empty array", `[]`, "", false},
		{"null", `null`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var one remote.One[profile]
			require.NoError(t, json.Unmarshal([]byte(tt.input), &one))
			got, ok := one.Get()
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

// ===== Storage =====

func TestUpload_PublicAndSignedURLs(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	id := srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()
	_, err := c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	key := id + "/avatar.png"
	ref, err := c.Upload(ctx, "avatars", key, []byte("png-bytes"), "image/png", true)
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+key, ref)

	for _, url := range []string{c.PublicURL("avatars", key), mustSign(t, c, key)} {
		resp, err := srv.Client().Get(url)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, url)
		assert.Equal(t, "png-bytes", string(body))
	}
}

func mustSign(t *testing.T, c *remote.Client, key string) string {
	t.Helper()
	url, err := c.SignedURL(context.Background(), "avatars", key, time.Hour)
	require.NoError(t, err)
	return url
}

func TestUpload_ForeignPrefixRejected(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.AddAccount("asha@pstu.ac.bd", "secret1")
	c := newClient(t, srv, nil)
	ctx := context.Background()
	_, err := c.SignInWithPassword(ctx, "asha@pstu.ac.bd", "secret1")
	require.NoError(t, err)

	_, err = c.Upload(ctx, "avatars", "someone-else/avatar.png", []byte("x"), "image/png", true)
	assert.True(t, remote.IsStatus(err, http.StatusForbidden))
}
