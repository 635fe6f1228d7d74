package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/deepgram/glmchat/internal/logger"
)

const (
	readHeaderTimeout   = 10 * time.Second
	idleTimeout         = 60 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

func newHTTPServer(host string, port int, handler http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// runServer serves until ctx is done, then shuts down gracefully. onShutdown
// runs before in-flight requests are drained.
func runServer(ctx context.Context, srv *http.Server, onShutdown func()) error {
	l := logger.For(logger.APP)
	l.Info().Str("addr", srv.Addr).Msg("Server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.Info().Msg("Shutting down server")
		if onShutdown != nil {
			onShutdown()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		l.Info().Msg("Server shutdown complete")
		return nil
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
}
