package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pstu-cpl/cpl/internal/cli"
	"github.com/pstu-cpl/cpl/internal/config"
	"github.com/pstu-cpl/cpl/internal/remote"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cplctl:", err)
		os.Exit(1)
	}
	if cfg.RemoteBackend != config.BackendSupabase {
		fmt.Fprintln(os.Stderr, "cplctl: REMOTE_BACKEND must be supabase; the in-memory service does not outlive one command")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Options{
		Remote:       remote.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey},
		AvatarBucket: cfg.AvatarBucket,
		AvatarPublic: cfg.AvatarBucketPublic,
		StatePath:    cfg.StatePath,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
