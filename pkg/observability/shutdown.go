package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc releases one resource during shutdown. It must respect
// the deadline on the passed context.
type ShutdownFunc func(context.Context) error

// ShutdownManager waits for SIGINT/SIGTERM, drains the HTTP server and
// then runs the registered cleanup functions in parallel under one
// shared deadline.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager builds a manager draining the given server. A zero
// timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds a cleanup step. Steps run in parallel, so
// they must not depend on each other.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	sm.funcs = append(sm.funcs, fn)
	sm.mu.Unlock()
}

// WaitForShutdown blocks until a termination signal arrives, then runs
// the drain sequence. It returns the first error encountered; the
// remaining steps still run.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	sm.logger.WithField("signal", sig.String()).Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	return sm.drain(ctx)
}

// drain stops accepting requests first, then releases the remaining
// resources in parallel.
func (sm *ShutdownManager) drain(ctx context.Context) error {
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server drain failed")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server drained")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range funcs {
		fn := fn
		g.Go(func() error {
			return fn(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		sm.logger.WithError(err).Error("shutdown step failed")
		return err
	}

	sm.logger.Info("graceful shutdown complete")
	return nil
}

// GracefulShutdown is the one-call variant for binaries with no extra
// configuration needs.
func GracefulShutdown(logger *Logger, server *http.Server, funcs ...ShutdownFunc) error {
	sm := NewShutdownManager(logger, server, 0)
	for _, fn := range funcs {
		sm.RegisterShutdownFunc(fn)
	}
	return sm.WaitForShutdown()
}
