package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/walletmart/internal/db"
	"github.com/nkiryanov/walletmart/internal/handlers"
	"github.com/nkiryanov/walletmart/internal/idempotency"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/repository/postgres"
	"github.com/nkiryanov/walletmart/internal/service/auth"
	"github.com/nkiryanov/walletmart/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/walletmart/internal/service/balance"
	"github.com/nkiryanov/walletmart/internal/service/purchase"
	"github.com/nkiryanov/walletmart/internal/service/reconcile"
	"github.com/nkiryanov/walletmart/internal/service/redeem"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger

	// Background repair of listings, nil when disabled
	reconciler *reconcile.Processor

	// Released when the app stops
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	services, err := newServices(c, pool, l)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Idempotency guard is optional
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		app.closers = append(app.closers, func() { _ = rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		services.Idempotency = idempotency.NewStore(rdb, c.IdempotencyTTL)
		l.Info("Idempotency guard enabled", "redis", c.RedisAddr, "ttl", c.IdempotencyTTL)
	}

	if c.ReconcileInterval > 0 {
		app.reconciler = reconcile.New(postgres.NewStorage(pool), l.With("service", "reconcile"), reconcile.WithInterval(c.ReconcileInterval))
	}

	app.Handler = handlers.NewRouter(services, l)
	return app, nil
}

func newServices(c *Config, pool *pgxpool.Pool, l logger.Logger) (handlers.Services, error) {
	storage := postgres.NewStorage(pool)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return handlers.Services{}, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	return handlers.Services{
		Auth:     auth.NewService(tokenManager),
		Purchase: purchase.NewCoordinator(storage, l.With("service", "purchase")),
		Redeem:   redeem.NewCoordinator(storage, l.With("service", "redeem")),
		Wallet:   balance.NewService(storage.Wallet()),
	}, nil
}

// Release db and redis connections
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Returned channel is closed when reconciler stopped (or at once if disabled)
func (s *ServerApp) startReconciler(ctx context.Context) <-chan struct{} {
	if s.reconciler == nil {
		stopped := make(chan struct{})
		close(stopped)
		return stopped
	}
	return s.reconciler.Process(ctx)
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	reconcilerStopped := s.startReconciler(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-reconcilerStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
