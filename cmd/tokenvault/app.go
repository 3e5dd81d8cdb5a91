package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akarpov/tokenvault/internal/crypto"
	"github.com/akarpov/tokenvault/internal/db"
	"github.com/akarpov/tokenvault/internal/handlers"
	"github.com/akarpov/tokenvault/internal/logger"
	"github.com/akarpov/tokenvault/internal/repository/postgres"
	"github.com/akarpov/tokenvault/internal/scheduler"
	"github.com/akarpov/tokenvault/internal/service/auth"
	"github.com/akarpov/tokenvault/internal/service/blacklist"
	"github.com/akarpov/tokenvault/internal/service/token"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Scheduler  *scheduler.Scheduler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger. Err: %w", err)
	}

	// Fail fast on a bad encryption key, before anything touches the db
	cipher, err := crypto.New(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("error while initializing cipher. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Blacklist: shared redis when configured, process-local otherwise
	var bl blacklist.Blacklist = blacklist.NewMemory()
	if c.RedisAddr != "" {
		bl = blacklist.NewRedis(redis.NewClient(&redis.Options{Addr: c.RedisAddr}), "")
	}

	// Initialize services
	tokenService, err := token.NewService(token.Config{}, cipher, storage.Refresh(), log)
	if err != nil {
		return nil, fmt.Errorf("error while creating token service. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{SecretKey: c.SecretKey}, tokenService, storage.User(), bl, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	sched, err := scheduler.New(tokenService, bl, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating scheduler. Err: %w", err)
	}

	mux := handlers.NewRouter(handlers.NewAuth(authService), authService, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Scheduler:  sched,
	}, nil
}

// Run starts the http server and the scheduler,
// closes both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	s.Scheduler.Start()
	defer s.Scheduler.Stop()

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close connections gracefully
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
