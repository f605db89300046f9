package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// SignalHandler manages graceful shutdown of the HTTP server and the
// background workers hooked into it
type SignalHandler struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	hooks           []func()
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers fn to run before the server stops accepting requests.
// Hooks run in registration order.
func (sh *SignalHandler) OnShutdown(fn func()) {
	sh.hooks = append(sh.hooks, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives or ctx is done,
// then shuts the server down
func (sh *SignalHandler) WaitForShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sh.logger.Info("Initiating graceful shutdown", "cause", context.Cause(ctx))

	return sh.shutdown()
}

func (sh *SignalHandler) shutdown() error {
	for _, hook := range sh.hooks {
		hook()
	}

	ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
	defer cancel()

	if err := sh.server.Shutdown(ctx); err != nil {
		sh.logger.Error("Server forced to shutdown", "error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	sh.logger.Info("Server gracefully shut down")
	return nil
}

// HandleSignals starts the server and blocks until a shutdown signal is
// handled. A listener failure is returned immediately.
func HandleSignals(server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger, hooks ...func()) error {
	handler := NewSignalHandler(server, shutdownTimeout, logger)
	for _, hook := range hooks {
		handler.OnShutdown(hook)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel(err)
		}
	}()

	shutdownErr := handler.WaitForShutdown(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	default:
		return shutdownErr
	}
}
