package main

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

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/croptrace/internal/adapter/fsm"
	"github.com/neomorfeo/croptrace/internal/adapter/memory"
	oteladapter "github.com/neomorfeo/croptrace/internal/adapter/otel"
	"github.com/neomorfeo/croptrace/internal/adapter/postgres"
	riveradapter "github.com/neomorfeo/croptrace/internal/adapter/river"
	"github.com/neomorfeo/croptrace/internal/adapter/sqlite"
	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"

	handler "github.com/neomorfeo/croptrace/internal/adapter/http"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("croptrace stopped", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelCfg := oteladapter.ConfigFromEnv()
	providers, err := oteladapter.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	store, publisher, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	validators := app.Validators{
		Origin:  oteladapter.NewTracingValidator[domain.OriginStatus, domain.OriginEvent](fsm.NewOriginValidator(), domain.LotOrigin),
		Product: oteladapter.NewTracingValidator[domain.ProductStatus, domain.ProductEvent](fsm.NewProductValidator(), domain.LotProduct),
	}

	// --- Application ---
	svc := app.NewLedgerService(
		oteladapter.NewTracingStore(store),
		validators,
		oteladapter.NewTracingPublisher(publisher),
		app.WithLogger(logger),
	)
	if err := svc.Initialize(ctx, domain.Account(cfg.Admin)); err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(otelCfg.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig("croptrace", otelCfg.ServiceVersion))
	handler.Register(api, svc)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("croptrace listening", "port", cfg.Port, "driver", cfg.Driver, "docs", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}

// openBackend opens the configured ledger store and the publisher that
// delivers its committed entries. The returned func releases both.
func openBackend(ctx context.Context, cfg config, logger *slog.Logger) (domain.Store, domain.EventPublisher, func(), error) {
	fallback := &logPublisher{logger: logger}

	switch cfg.Driver {
	case "memory":
		return memory.New(), fallback, func() {}, nil

	case "postgres":
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database: %w", err)
		}
		return store, fallback, func() { store.Close() }, nil
	}

	db, err := oteladapter.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	store, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	if !cfg.Queue {
		return store, fallback, func() { store.Close() }, nil
	}

	client, err := riveradapter.Setup(ctx, db, logger, riveradapter.WithMaxWorkers(cfg.QueueWorkers))
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("river: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("river start: %w", err)
	}

	closeAll := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			logger.Error("river stop", "error", err)
		}
		store.Close()
	}
	return store, riveradapter.NewPublisher(client), closeAll, nil
}
