package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/config"
	"github.com/example/saturday/internal/events"
	"github.com/example/saturday/internal/logging"
	"github.com/example/saturday/internal/persistence/sqldb"
	"github.com/example/saturday/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stdout, cfg.LogLevel)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.HTTPPort, "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, listener, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// run serves the API on listener until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, listener net.Listener, logger *slog.Logger) error {
	storage, err := sqldb.OpenStorage(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx, logger); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	srv, err := server.New(storage, server.Options{
		Secret:       []byte(cfg.JWTSecret),
		TokenTTL:     cfg.TokenTTL,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
		Events:       publisher,
		Health:       storage,
	})
	if err != nil {
		return err
	}

	count, err := srv.Seed(ctx, cfg.SeedSchools)
	if err != nil {
		return fmt.Errorf("seed schools: %w", err)
	}
	logger.Info("school catalog ready", "schools", count)

	httpServer := &http.Server{
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("saturday API listening",
			"addr", listener.Addr().String(),
			"environment", cfg.Environment,
			"database", string(sqldb.DialectFor(cfg.DatabaseURL)),
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown http: %w", err)
		}
		logger.Info("saturday API stopped")
		return nil
	})
	return group.Wait()
}

// newPublisher connects to NATS when a URL is configured. Without one, events are dropped.
func newPublisher(cfg config.Config, logger *slog.Logger) (application.EventPublisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.Nop{}, func() {}, nil
	}
	publisher, err := events.Connect(cfg.NATSURL, events.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := publisher.Close(ctx); err != nil {
			logger.Error("failed to close event publisher", "error", err)
		}
	}
	return publisher, closeFn, nil
}
