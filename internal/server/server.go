// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/metrics"
	"codeberg.org/synchro/synchroweb/internal/ratelimit"
	"codeberg.org/synchro/synchroweb/internal/repository"
	"codeberg.org/synchro/synchroweb/internal/services/account"
	"codeberg.org/synchro/synchroweb/internal/services/blob"
	"codeberg.org/synchro/synchroweb/internal/services/cull"
	"codeberg.org/synchro/synchroweb/internal/services/email"
	"codeberg.org/synchro/synchroweb/internal/services/session"
	"codeberg.org/synchro/synchroweb/internal/services/sso"
)

// App bundles the collaborators the HTTP server is built from.
type App struct {
	Config   *config.Config
	Store    repository.AccountStore
	Accounts *account.Service
	Blobs    blob.Store
	SSO      *sso.Bridge
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.Limiter
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"store", cfg.Store.Backend,
		"blob", cfg.Blob.Backend,
	)

	// i18n
	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	// Account store
	store, closeStore, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			slog.Error("failed to close account store", "error", closeErr)
		}
	}()

	app, err := newApp(ctx, cfg, store)
	if err != nil {
		return err
	}

	// Background jobs
	culler := cull.New(store, cfg.Cull.MaxAge)
	if err := culler.Start(cfg.Cull.Schedule); err != nil {
		return err
	}
	defer culler.Stop()

	stop := make(chan struct{})
	defer close(stop)
	app.Limiter.StartCleanup(time.Minute, stop)

	return startWithGracefulShutdown(New(app), cfg)
}

// newApp wires the services around an opened account store.
func newApp(ctx context.Context, cfg *config.Config, store repository.AccountStore) (*App, error) {
	blobs, err := blob.New(ctx, &cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	mailer, err := email.NewService(email.NewSender(&cfg.SMTP), &cfg.SMTP, cfg.Site.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to set up mail: %w", err)
	}

	sessions, err := session.NewManager(&cfg.Session, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("failed to set up sessions: %w", err)
	}

	m := metrics.New()
	policy := account.Policy{
		RequireVerifiedForSecret: cfg.Policy.RequireVerifiedForSecret,
		RequireLicenseForSecret:  cfg.Policy.RequireLicenseForSecret,
		RequireVerifiedForDist:   cfg.Policy.RequireVerifiedForDist,
		RequireLicenseForDist:    cfg.Policy.RequireLicenseForDist,
		LicenseVersion:           cfg.Policy.LicenseVersion,
	}

	bridge := sso.New(cfg.SSO.ZendeskSubdomain, cfg.SSO.ZendeskSharedKey)
	if bridge.Enabled() {
		slog.Info("sso_enabled", "subdomain", cfg.SSO.ZendeskSubdomain)
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Accounts: account.NewService(store, mailer, policy, account.WithRecorder(m)),
		Blobs:    blobs,
		SSO:      bridge,
		Sessions: sessions,
		Metrics:  m,
		Limiter:  ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}, nil
}

// New builds the Echo instance serving app.
func New(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	ranges, err := app.Config.Server.ProxyRanges()
	if err != nil {
		slog.Warn("trusted_proxies_ignored", "error", err)
	}
	e.IPExtractor = ipExtractor(ranges)

	h := setupRoutes(e, app)
	e.HTTPErrorHandler = h.HTTPErrorHandler
	setupMiddleware(e, app)
	return e
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	// Channel for server errors
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	e.Server.ReadHeaderTimeout = 10 * time.Second
	go func() {
		slog.Info("Server running", "addr", addr, "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Cull deletes unverified accounts once and exits.
func Cull(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	store, closeStore, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	maxAge := cfg.Cull.MaxAge
	if cmd.IsSet("older-than") {
		maxAge = cmd.Duration("older-than")
	}
	if maxAge <= 0 {
		return errors.New("cull max age must be positive")
	}

	removed, err := cull.New(store, maxAge).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "removed %d unverified accounts\n", removed)
	return nil
}
