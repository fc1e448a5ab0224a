package ports

import (
	"context"

	"github.com/poyrazK/authbroker/internal/core/domain"
)

// AuthIDRepository persists auth identifiers. Implementations return the domain
// sentinel errors (ErrNotFound, ErrConflict, ErrUnavailable) wrapped around any
// backend cause.
type AuthIDRepository interface {
	Create(ctx context.Context, id string, customerID, label *string) (*domain.AuthID, error)
	Get(ctx context.Context, id string) (*domain.AuthID, error)
	List(ctx context.Context) ([]domain.AuthID, error)
	SetActive(ctx context.Context, id string, active bool) (*domain.AuthID, error)
	Exists(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// IDGenerator produces unguessable identifier values.
type IDGenerator interface {
	Generate() string
}

// VerifyCache remembers recent verification outcomes.
type VerifyCache interface {
	Get(ctx context.Context, id string) (valid bool, found bool)
	Set(ctx context.Context, id string, valid bool)
	Invalidate(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type AuthIDService interface {
	Issue(ctx context.Context, customerID, label *string) (*domain.AuthID, error)
	Get(ctx context.Context, id string) (*domain.AuthID, error)
	List(ctx context.Context) ([]domain.AuthID, error)
	Enable(ctx context.Context, id string) (*domain.AuthID, error)
	Disable(ctx context.Context, id string) (*domain.AuthID, error)
	Verify(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	HealthCheck(ctx context.Context) map[string]error
}
