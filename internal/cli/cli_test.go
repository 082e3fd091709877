package cli_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/cli"
	"github.com/pstu-cpl/cpl/internal/remote/remotetest"
)

const pngBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// --- Helpers ---

type harness struct {
	srv  *remotetest.Server
	opts cli.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := remotetest.New()
	return &harness{
		srv: srv,
		opts: cli.Options{
			Remote:       srv.Config(),
			AvatarBucket: "avatars",
			AvatarPublic: true,
			StatePath:    filepath.Join(t.TempDir(), "state.db"),
		},
	}
}

// run executes one cplctl invocation, like a separate process sharing the
// state file.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand(h.opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T) string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(pngBase64)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// ===== Session lifecycle =====

func TestCLI_RegisterPersistsAcrossRuns(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "register", "--name", "Asha", "--email", "asha@pstu.ac.bd",
		"--password", "secret1", "--session", "2021-22", "--avatar", writePNG(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Registered Asha <asha@pstu.ac.bd>")
	assert.Contains(t, out, "/storage/v1/object/public/avatars/")
	assert.Len(t, h.srv.Objects("avatars"), 1)

	out, err = h.run(t, "", "whoami", "--json")
	require.NoError(t, err)
	var snap struct {
		State string    `json:"state"`
		User  auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "authenticated", snap.State)
	assert.Equal(t, "Asha", snap.User.Name)
	assert.Equal(t, "2021-22", snap.User.Session)

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestCLI_LoginReadsPasswordFromStdin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.run(t, "", "register", "--name", "Rafi", "--email", "rafi@pstu.ac.bd", "--password", "secret1")
	require.NoError(t, err)
	_, err = h.run(t, "", "logout")
	require.NoError(t, err)

	out, err := h.run(t, "secret1\n", "login", "--email", "rafi@pstu.ac.bd")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Rafi")
	assert.Contains(t, out, "player")

	_, err = h.run(t, "wrong\n", "login", "--email", "rafi@pstu.ac.bd")
	assert.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	_, err = h.run(t, "", "login", "--email", "rafi@pstu.ac.bd")
	assert.ErrorContains(t, err, "password is required")
}

func TestCLI_UpdateOnlyChangesPassedFields(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.run(t, "", "register", "--name", "Asha", "--email", "asha@pstu.ac.bd",
		"--password", "secret1", "--semester", "4th", "--player-type", "Bowler")
	require.NoError(t, err)

	out, err := h.run(t, "", "update", "--semester", "5th", "--json")
	require.NoError(t, err)
	var u auth.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "5th", u.Semester)
	assert.Equal(t, "Bowler", u.PlayerType)
	assert.Equal(t, "Asha", u.Name)

	_, err = h.run(t, "", "update", "--avatar", writePNG(t), "--remove-avatar")
	assert.ErrorContains(t, err, "cannot be combined")
}

func TestCLI_SignedOutCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run(t, "", "update", "--name", "Nobody")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = h.run(t, "", "passwd", "--password", "another1")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = h.run(t, "", "passwd", "--password", "123")
	assert.ErrorContains(t, err, "at least 6")
}

func TestCLI_ResetPassword(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "reset-password", "asha@pstu.ac.bd")
	require.NoError(t, err)
	assert.Contains(t, out, "recovery link")
	assert.Equal(t, []string{"asha@pstu.ac.bd"}, h.srv.Recoveries())
}

func TestCLI_ServiceDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.srv.Down.Store(true)

	_, err := h.run(t, "", "login", "--email", "asha@pstu.ac.bd", "--password", "secret1")
	assert.ErrorIs(t, err, auth.ErrRemoteServiceUnavailable)
	assert.ErrorContains(t, err, "unreachable")
}

func TestCLI_RejectsNonImageAvatar(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a photo"), 0o600))

	_, err := h.run(t, "", "register", "--name", "A", "--email", "a@pstu.ac.bd", "--password", "secret1", "--avatar", path)
	assert.ErrorContains(t, err, "is not an image")
	assert.Empty(t, h.srv.Rows("profiles"))
}
