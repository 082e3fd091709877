package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pstu-cpl/cpl/internal/api"
	"github.com/pstu-cpl/cpl/internal/api/handler"
	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/catalog"
	"github.com/pstu-cpl/cpl/internal/config"
	"github.com/pstu-cpl/cpl/internal/database"
	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/remote/remotetest"
	"github.com/pstu-cpl/cpl/internal/session"
	"github.com/pstu-cpl/cpl/internal/testimonial"
	"github.com/pstu-cpl/cpl/internal/websession"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openSessionStore(cfg)
	if err != nil {
		slog.Error("failed to open session store", "backend", cfg.SessionBackend, "error", err)
		os.Exit(1)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	remoteCfg := remoteConfig(cfg)

	mgr := websession.NewManager(websession.Options{
		Remote:       remoteCfg,
		Store:        store,
		AvatarBucket: cfg.AvatarBucket,
		AvatarPublic: cfg.AvatarBucketPublic,
		IdleTTL:      cfg.SessionIdleTTL,
		Retention:    cfg.SessionRetention,
	})
	defer mgr.Close()
	go mgr.Run(ctx, cfg.SessionSweepInterval)

	anon, err := remote.NewClient(remoteCfg, nil)
	if err != nil {
		slog.Error("failed to create remote client", "error", err)
		os.Exit(1)
	}
	catalogSvc := catalog.NewService(catalog.NewRemoteSource(anon), catalog.DefaultStaticSource())

	var (
		pinger       handler.DBPinger
		testimonials testimonial.Repository
	)
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		pinger = db
		testimonials = testimonial.NewRepository(db.Pool())
	} else {
		slog.Warn("DATABASE_URL not set; testimonials are kept in memory")
		testimonials = testimonial.NewMemoryRepository()
	}

	router := api.NewRouter(api.RouterDeps{
		Version:      cfg.Version,
		DBPinger:     pinger,
		Sessions:     mgr,
		Cookies:      middleware.NewCookieStore(cfg.SessionSecret, cfg.SessionCookieSecure),
		Catalog:      catalogSvc,
		Testimonials: testimonials,
		Policy:       auth.DefaultPolicy(),
		CORSOrigins:  cfg.CORSAllowedOrigins,
		OpenAPISpec:  api.OpenAPISpec,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting CPL server", "port", cfg.Port, "version", cfg.Version, "remote", cfg.RemoteBackend, "sessions", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}

func openSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionRedis:
		return session.NewRedisStore(session.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      30 * 24 * time.Hour,
		})
	case config.SessionMemory:
		return session.NewMemoryStore(), nil
	default:
		return session.OpenSQLite(cfg.SessionSQLitePath)
	}
}

// remoteConfig returns the remote service settings. The memory backend
// runs an in-process fake so the site works without a hosted project.
func remoteConfig(cfg *config.Config) remote.Config {
	if cfg.RemoteBackend == config.BackendMemory {
		slog.Warn("using in-memory remote service; accounts are lost on restart")
		return remotetest.New().Config()
	}
	return remote.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey}
}
