package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/portal/internal/app"
	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/config"
	"github.com/JonMunkholm/portal/internal/logging"
	"github.com/JonMunkholm/portal/internal/metrics"
	"github.com/JonMunkholm/portal/internal/web"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())
	if cfg.Import.PredictablePasswords {
		slog.Warn("imported students get their username as password; set IMPORT_PREDICTABLE_PASSWORDS=false outside demos")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	portal, err := app.New(ctx, cfg, app.Options{
		Migrate:  cfg.Database.AutoMigrate,
		Observer: m,
	})
	if err != nil {
		return err
	}
	defer portal.Close()

	sessions, err := auth.NewSessions(cfg.Security.SessionSecret, cfg.Security.SessionTTL)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, portal.Service, portal.Authenticator(), sessions, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := portal.Service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
