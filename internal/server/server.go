// Package server собирает HTTP сервер синхронизации: маршруты, middleware и жизненный цикл.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/tasksync/internal/server/handlers"
	"github.com/iudanet/tasksync/internal/server/jwt"
	"github.com/iudanet/tasksync/internal/server/middleware"
)

// Config параметры HTTP слоя
type Config struct {
	Version         string
	RateLimit       int
	RateWindow      time.Duration
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		RateLimit:       600,
		RateWindow:      time.Minute,
		MaxBodyBytes:    16 << 20,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Store хранилище журнала операций с проверкой доступности
type Store interface {
	handlers.OpLogStorage
	handlers.Pinger
}

// Server HTTP сервер синхронизации
type Server struct {
	logger  *slog.Logger
	handler http.Handler
	limiter *middleware.RateLimiter
	cfg     Config
}

// New создает сервер. Close освобождает фоновые ресурсы.
func New(logger *slog.Logger, store Store, tokens *jwt.Service, cfg Config) *Server {
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)

	return &Server{
		logger:  logger,
		handler: newHandler(logger, store, tokens, limiter, cfg),
		limiter: limiter,
		cfg:     cfg,
	}
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close останавливает rate limiter
func (s *Server) Close() {
	s.limiter.Stop()
}

func newHandler(logger *slog.Logger, store Store, tokens *jwt.Service, limiter *middleware.RateLimiter, cfg Config) http.Handler {
	health := handlers.NewHealthHandler(logger, store, cfg.Version)
	syncOps := handlers.NewSyncHandler(logger, store)

	var syncHandler http.Handler = http.HandlerFunc(syncOps.HandleSync)
	syncHandler = middleware.GzipMiddleware(logger, cfg.MaxBodyBytes)(syncHandler)
	syncHandler = middleware.AuthMiddleware(logger, tokens)(syncHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Health)
	mux.Handle("/sync/ops", syncHandler)

	// Порядок: recovery -> logging -> rate limit -> маршруты
	var root http.Handler = mux
	root = middleware.RateLimitMiddleware(limiter, logger)(root)
	root = middleware.LoggingMiddleware(logger, "/health")(root)
	root = middleware.RecoveryMiddleware(logger)(root)

	return root
}

// Serve обслуживает listener до отмены ctx, затем корректно завершает соединения
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	s.logger.Info("Server listening", "addr", listener.Addr().String())

	select {
	case err, ok := <-serveErrCh:
		if ok && err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err, ok := <-serveErrCh; ok && err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
