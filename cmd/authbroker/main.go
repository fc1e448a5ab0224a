package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poyrazK/authbroker/internal/adapters/api"
	"github.com/poyrazK/authbroker/internal/core/ports"
	"github.com/poyrazK/authbroker/internal/infrastructure/bootstrap"
	"github.com/poyrazK/authbroker/internal/infrastructure/config"
	"github.com/poyrazK/authbroker/internal/infrastructure/netutil"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("authbroker: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("failed to close runtime", "error", err)
		}
	}()

	ln, err := netutil.Listen(ctx, cfg.HTTPAddr, cfg.ReusePort)
	if err != nil {
		return err
	}
	logger.Info("management API listening", "addr", ln.Addr().String(), "reuseport", cfg.ReusePort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error {
		return serve(gctx, ln, newHandler(rt.Service, cfg, logger), cfg.ShutdownTimeout, logger)
	})
	return g.Wait()
}

func newHandler(svc ports.AuthIDService, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	api.NewAPIHandler(svc, logger, cfg.AuthHeader).RegisterRoutes(mux)

	var h http.Handler = mux
	h = api.CORS(cfg.AllowedOrigins)(h)
	h = api.RequestLogger(logger)(h)
	return h
}

// serve runs the HTTP server on ln until ctx is done, then drains in-flight requests
// for at most shutdownTimeout.
func serve(ctx context.Context, ln net.Listener, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
