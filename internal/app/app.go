// Package app wires configuration into a running portal: store, service
// and password hasher. The server and portalctl share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/config"
	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/store"
)

// App holds the long-lived dependencies built from a Config.
type App struct {
	Config  *config.Config
	Store   core.Store
	Hasher  auth.BcryptHasher
	Service *core.Service
}

// Options tune New.
type Options struct {
	// Migrate applies pending schema migrations before opening the store.
	Migrate bool

	// Observer receives batch outcomes; nil disables.
	Observer core.Observer
}

// New opens the store named by cfg.Database.URL and builds the service.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Migrate {
		version, err := store.Migrate(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("database schema ready", "version", version)
	}

	st, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	hasher := auth.NewBcryptHasher(cfg.Security.BcryptCost)
	service := core.NewService(st, hasher, ServiceConfig(cfg), opts.Observer)

	return &App{
		Config:  cfg,
		Store:   st,
		Hasher:  hasher,
		Service: service,
	}, nil
}

// ServiceConfig maps the upload and import settings onto core.ServiceConfig.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		MaxFileSize:   cfg.Upload.MaxFileSize,
		ImportTimeout: cfg.Upload.Timeout,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Credentials: core.CredentialPolicy{
			EmailDomain:          cfg.Import.EmailDomain,
			PredictablePasswords: cfg.Import.PredictablePasswords,
		},
	}
}

// Authenticator returns a login checker over the app's store.
func (a *App) Authenticator() *auth.Authenticator {
	return auth.NewAuthenticator(a.Store, a.Hasher)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
