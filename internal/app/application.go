// Package app wires configuration, storage, services and the HTTP server
// into one runnable application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Printendo/jose/internal/config"
	"github.com/Printendo/jose/internal/httpapi"
	"github.com/Printendo/jose/internal/ledger"
	"github.com/Printendo/jose/internal/logging"
	"github.com/Printendo/jose/internal/metrics"
	"github.com/Printendo/jose/internal/platform/database"
	"github.com/Printendo/jose/internal/platform/migrations"
	"github.com/Printendo/jose/internal/stats"
)

// Application owns the process lifecycle: it connects the database, applies
// the schema, builds the services and serves HTTP until shut down.
type Application struct {
	cfg        *config.Config
	log        *logging.Logger
	db         *sql.DB
	httpServer *http.Server
}

// New constructs the application with default wiring.
func New(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig constructs the application from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logging.New(cfg.Logging)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	ledgerSvc := ledger.NewService(ledger.NewStore(db), log)
	statsSvc := stats.NewService(db)

	var handler http.Handler = httpapi.NewHandler(ledgerSvc, statsSvc, log)
	handler = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Handler(handler)
	handler = metrics.InstrumentHandler(handler)
	handler = httpapi.WithAccessLog(log, handler)
	handler = httpapi.WithRecovery(log, handler)
	handler = httpapi.WithRequestID(handler)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		db:         db,
		httpServer: srv,
	}, nil
}

// Logger exposes the application logger for the entrypoint.
func (a *Application) Logger() *logging.Logger {
	return a.log
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.log.Infof("jcoin listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests within the configured grace period and
// closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	grace := time.Duration(a.cfg.Server.ShutdownGrace) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("error closing database connection")
	}
	return nil
}
