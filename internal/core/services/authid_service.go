package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/core/ports"
	"github.com/poyrazK/authbroker/internal/infrastructure/metrics"
)

// DefaultMaxIssueAttempts bounds generate+create rounds during issuance.
const DefaultMaxIssueAttempts = 5

// invalidationStripes spreads ids over generation counters. Two ids sharing a stripe
// only cost a skipped cache fill.
const invalidationStripes = 256

type authIDService struct {
	repo        ports.AuthIDRepository
	gen         ports.IDGenerator
	cache       ports.VerifyCache
	logger      *slog.Logger
	maxAttempts int

	// generations is bumped before every cache invalidation. Verify only keeps a
	// cached result if no invalidation overlapped its storage read.
	generations [invalidationStripes]atomic.Uint64
}

// Option configures the auth id service.
type Option func(*authIDService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *authIDService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVerifyCache puts a cache in front of verification lookups.
func WithVerifyCache(cache ports.VerifyCache) Option {
	return func(s *authIDService) { s.cache = cache }
}

func WithMaxIssueAttempts(n int) Option {
	return func(s *authIDService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewAuthIDService(repo ports.AuthIDRepository, gen ports.IDGenerator, opts ...Option) ports.AuthIDService {
	s := &authIDService{
		repo:        repo,
		gen:         gen,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxIssueAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *authIDService) Issue(ctx context.Context, customerID, label *string) (rec *domain.AuthID, err error) {
	defer observe("issue", time.Now(), &err)

	customerID, err = domain.NormalizeTag("customer_id", customerID)
	if err != nil {
		return nil, err
	}
	label, err = domain.NormalizeTag("label", label)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		id := s.gen.Generate()
		rec, err = s.repo.Create(ctx, id, customerID, label)
		if err == nil {
			s.invalidate(ctx, id)
			return rec, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		metrics.IssueCollisions.Inc()
		s.logger.Warn("auth id collision, regenerating", "attempt", attempt)
	}

	s.logger.Error("auth id issuance exhausted retries", "attempts", s.maxAttempts)
	return nil, fmt.Errorf("%w after %d attempts", domain.ErrExhaustedRetries, s.maxAttempts)
}

func (s *authIDService) Get(ctx context.Context, id string) (rec *domain.AuthID, err error) {
	defer observe("get", time.Now(), &err)
	return s.repo.Get(ctx, id)
}

func (s *authIDService) List(ctx context.Context) (recs []domain.AuthID, err error) {
	defer observe("list", time.Now(), &err)
	return s.repo.List(ctx)
}

func (s *authIDService) Enable(ctx context.Context, id string) (*domain.AuthID, error) {
	return s.setActive(ctx, "enable", id, true)
}

func (s *authIDService) Disable(ctx context.Context, id string) (*domain.AuthID, error) {
	return s.setActive(ctx, "disable", id, false)
}

func (s *authIDService) setActive(ctx context.Context, op, id string, active bool) (rec *domain.AuthID, err error) {
	defer observe(op, time.Now(), &err)

	rec, err = s.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.logger.Info("auth id state changed", "op", op, "state", rec.State())
	return rec, nil
}

// Verify reports whether id exists and is active. An unknown id is a normal negative
// result, never an error.
func (s *authIDService) Verify(ctx context.Context, id string) (valid bool, err error) {
	start := time.Now()
	defer func() {
		observe("verify", start, &err)
		if err == nil {
			result := "invalid"
			if valid {
				result = "valid"
			}
			metrics.VerificationsTotal.WithLabelValues(result).Inc()
		}
	}()

	if domain.ValidateID(id) != nil {
		return false, nil
	}

	var gen uint64
	if s.cache != nil {
		gen = s.generation(id).Load()
		if cached, found := s.cache.Get(ctx, id); found {
			metrics.CacheOperations.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.CacheOperations.WithLabelValues("miss").Inc()
	}

	var rec *domain.AuthID
	rec, err = s.repo.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		valid = false
	case err != nil:
		return false, err
	default:
		valid = rec.IsActive
	}

	if s.cache != nil {
		s.fill(ctx, id, gen, valid)
	}
	return valid, nil
}

// fill caches a verification result read while the id's generation was gen. An
// invalidation that lands after the read either bumps the generation before Set, so the
// recheck drops the entry, or runs its Invalidate after Set and removes it itself.
func (s *authIDService) fill(ctx context.Context, id string, gen uint64, valid bool) {
	g := s.generation(id)
	if g.Load() != gen {
		return
	}
	s.cache.Set(ctx, id, valid)
	if g.Load() != gen {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("failed to drop stale verify cache entry", "error", err)
		}
	}
}

func (s *authIDService) generation(id string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.generations[h.Sum32()%invalidationStripes]
}

func (s *authIDService) Exists(ctx context.Context, id string) (ok bool, err error) {
	defer observe("exists", time.Now(), &err)
	return s.repo.Exists(ctx, id)
}

func (s *authIDService) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]error{
		"storage": s.repo.Ping(ctx),
	}
	if s.cache != nil {
		checks["cache"] = s.cache.Ping(ctx)
	}
	return checks
}

func (s *authIDService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.generation(id).Add(1)
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate verify cache", "error", err)
	}
}

func observe(op string, start time.Time, err *error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.OperationsTotal.WithLabelValues(op, metrics.Result(*err)).Inc()
}
