// Package cli implements cplctl, a terminal client for player accounts.
// Each invocation runs one auth controller whose session survives between
// runs in a local sqlite file.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/session"
)

// Options configures the root command.
type Options struct {
	Remote       remote.Config
	AvatarBucket string
	AvatarPublic bool

	// StatePath is the sqlite file holding the session. Empty means
	// ~/.cpl/state.db.
	StatePath string
	// Store replaces the sqlite file when set.
	Store session.Store
}

type app struct {
	opts    Options
	verbose bool
	jsonOut bool

	store  session.Store
	closer io.Closer
	ctrl   *auth.Controller
	client *remote.Client
}

// NewRootCommand returns the cplctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "cplctl",
		Short: "Manage your CSE Premier League player account",
		Long: `cplctl signs you in to the CSE Premier League and manages your player profile.

Your session is kept on this machine between runs.

Examples:
  cplctl register --name "Asha Rahman" --email asha@pstu.ac.bd --avatar photo.png
  cplctl login --email asha@pstu.ac.bd
  cplctl whoami
  cplctl update --semester 6th
  cplctl logout`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.updateCmd(),
		a.passwdCmd(),
		a.resetPasswordCmd(),
	)

	// Post-run hooks are skipped when RunE fails, so release the session here.
	for _, c := range root.Commands() {
		if c.RunE == nil {
			continue
		}
		inner := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return inner(cmd, args)
		}
	}
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	setupLogger(cmd.ErrOrStderr(), a.verbose)

	store := a.opts.Store
	if store == nil {
		path, err := statePath(a.opts.StatePath)
		if err != nil {
			return err
		}
		sq, err := session.OpenSQLite(path)
		if err != nil {
			return fmt.Errorf("opening local state: %w", err)
		}
		store, a.closer = sq, sq
	}
	a.store = store

	client, err := remote.NewClient(a.opts.Remote, store)
	if err != nil {
		a.close()
		return fmt.Errorf("creating remote client: %w", err)
	}
	a.client = client
	a.ctrl = auth.NewController(
		client,
		auth.NewRemoteProfiles(client),
		auth.NewAvatarUploader(client, client, a.opts.AvatarBucket, a.opts.AvatarPublic),
		auth.NewSnapshotStore(store),
	)
	if _, err := a.ctrl.Start(cmd.Context()); err != nil {
		a.close()
		return fmt.Errorf("starting session: %w", err)
	}
	slog.Debug("cli: session resolved", "state", a.ctrl.Snapshot().State.String())
	return nil
}

func (a *app) close() {
	if a.ctrl != nil {
		a.ctrl.Close()
		a.ctrl = nil
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			slog.Warn("cli: closing local state", "error", err)
		}
		a.closer = nil
	}
}

func setupLogger(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func statePath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	dir := filepath.Join(home, ".cpl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Join(dir, "state.db"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
