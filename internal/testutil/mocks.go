package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/poyrazK/authbroker/internal/core/domain"
)

// MemoryRepo is a thread-safe in-memory ports.AuthIDRepository for service tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]domain.AuthID
	now     func() time.Time

	// Unavailable makes every call fail with domain.ErrUnavailable.
	Unavailable bool
}

func NewMemoryRepo() *MemoryRepo {
	var tick int64
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &MemoryRepo{
		records: make(map[string]domain.AuthID),
		// Strictly increasing clock keeps List ordering deterministic.
		now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Millisecond)
		},
	}
}

var errOffline = errors.New("memory repo offline")

func (m *MemoryRepo) down() error {
	if m.Unavailable {
		return errors.Join(domain.ErrUnavailable, errOffline)
	}
	return nil
}

func (m *MemoryRepo) Create(_ context.Context, id string, customerID, label *string) (*domain.AuthID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(); err != nil {
		return nil, err
	}
	if _, ok := m.records[id]; ok {
		return nil, domain.ErrConflict
	}
	rec := domain.AuthID{ID: id, CustomerID: customerID, Label: label, IsActive: true, CreatedAt: m.now()}
	m.records[id] = rec
	return &rec, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*domain.AuthID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.down(); err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRepo) List(_ context.Context) ([]domain.AuthID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.down(); err != nil {
		return nil, err
	}
	recs := make([]domain.AuthID, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func (m *MemoryRepo) SetActive(_ context.Context, id string, active bool) (*domain.AuthID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.down(); err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.IsActive = active
	m.records[id] = rec
	return &rec, nil
}

func (m *MemoryRepo) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.down(); err != nil {
		return false, err
	}
	_, ok := m.records[id]
	return ok, nil
}

func (m *MemoryRepo) Ping(_ context.Context) error {
	return m.down()
}

func (m *MemoryRepo) Close() error { return nil }

// SequenceGenerator replays IDs in order, then falls back to Next.
type SequenceGenerator struct {
	mu   sync.Mutex
	IDs  []string
	Next func() string
}

func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.IDs) > 0 {
		id := g.IDs[0]
		g.IDs = g.IDs[1:]
		return id
	}
	if g.Next != nil {
		return g.Next()
	}
	return "fixed-id"
}

// StubCache is an in-memory ports.VerifyCache that records invalidations.
type StubCache struct {
	mu          sync.Mutex
	Entries     map[string]bool
	Invalidated []string
}

func NewStubCache() *StubCache {
	return &StubCache{Entries: make(map[string]bool)}
}

func (c *StubCache) Get(_ context.Context, id string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Entries[id]
	return v, ok
}

func (c *StubCache) Set(_ context.Context, id string, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Entries[id] = valid
}

func (c *StubCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Entries, id)
	c.Invalidated = append(c.Invalidated, id)
	return nil
}

func (c *StubCache) Ping(_ context.Context) error { return nil }
