// Package bootstrap assembles the broker's runtime from configuration. The server and
// the admin CLI share it so both reach the same store and caches.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poyrazK/authbroker/internal/adapters/cache"
	"github.com/poyrazK/authbroker/internal/adapters/idgen"
	"github.com/poyrazK/authbroker/internal/adapters/repository"
	"github.com/poyrazK/authbroker/internal/core/ports"
	"github.com/poyrazK/authbroker/internal/core/services"
	"github.com/poyrazK/authbroker/internal/infrastructure/config"
	"golang.org/x/sync/errgroup"
)

// Runtime holds the wired components and the background loops they need.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Repo    ports.AuthIDRepository
	Service ports.AuthIDService

	loops   []func(context.Context)
	closers []func() error
}

// NewLogger builds the JSON logger used across the process.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// OpenStore opens the configured storage backend.
func OpenStore(ctx context.Context, cfg *config.Config) (ports.AuthIDRepository, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		repo, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.BackendPostgres:
		repo, err := repository.OpenPostgres(ctx, repository.PoolConfig{
			URL:            cfg.DatabaseURL,
			MinConns:       cfg.PoolMinSize,
			MaxConns:       cfg.PoolMaxSize,
			AcquireTimeout: cfg.PoolAcquireTimeout,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Build opens the store, the optional verify cache and the service on top of them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	gen, err := idgen.New(cfg.IDFormat)
	if err != nil {
		return nil, err
	}

	repo, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	rt := &Runtime{Config: cfg, Logger: logger, Repo: repo}
	rt.closers = append(rt.closers, repo.Close)

	opts := []services.Option{services.WithLogger(logger)}
	if vc := rt.verifyCache(); vc != nil {
		opts = append(opts, services.WithVerifyCache(vc))
	}
	rt.Service = services.NewAuthIDService(repo, gen, opts...)

	logger.Info("runtime ready",
		"store", cfg.StoreBackend,
		"id_format", cfg.IDFormat,
		"verify_cache", cfg.VerifyCache,
	)
	return rt, nil
}

func (rt *Runtime) verifyCache() ports.VerifyCache {
	cfg := rt.Config
	newMemory := func() *cache.Memory {
		m := cache.NewMemory(cfg.VerifyCacheTTL)
		rt.closers = append(rt.closers, func() error { m.Close(); return nil })
		return m
	}
	newRedis := func() *cache.Redis {
		r := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.VerifyCacheTTL)
		rt.closers = append(rt.closers, r.Close)
		return r
	}

	switch cfg.VerifyCache {
	case config.CacheMemory:
		return newMemory()
	case config.CacheRedis:
		return newRedis()
	case config.CacheTiered:
		l1, l2 := newMemory(), newRedis()
		// Peers publish invalidations; drop them from the local tier as they arrive.
		rt.loops = append(rt.loops, func(ctx context.Context) {
			l1.Follow(ctx, l2.Subscribe(ctx))
		})
		return &cache.Tiered{L1: l1, L2: l2}
	default:
		return nil
	}
}

// Run drives background loops until ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range rt.loops {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}
	<-ctx.Done()
	return g.Wait()
}

// Close releases everything Build opened, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
