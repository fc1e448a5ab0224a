package cache

import (
	"context"

	"github.com/poyrazK/authbroker/internal/core/ports"
)

// Tiered consults an in-process L1 before the shared L2.
type Tiered struct {
	L1 ports.VerifyCache
	L2 ports.VerifyCache
}

func (t *Tiered) Get(ctx context.Context, id string) (bool, bool) {
	if valid, ok := t.L1.Get(ctx, id); ok {
		return valid, true
	}
	valid, ok := t.L2.Get(ctx, id)
	if ok {
		t.L1.Set(ctx, id, valid)
	}
	return valid, ok
}

func (t *Tiered) Set(ctx context.Context, id string, valid bool) {
	t.L1.Set(ctx, id, valid)
	t.L2.Set(ctx, id, valid)
}

func (t *Tiered) Invalidate(ctx context.Context, id string) error {
	if err := t.L1.Invalidate(ctx, id); err != nil {
		return err
	}
	return t.L2.Invalidate(ctx, id)
}

func (t *Tiered) Ping(ctx context.Context) error {
	return t.L2.Ping(ctx)
}
