package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dcastano/pagosur-backend/pkg/enums"
	"github.com/dcastano/pagosur-backend/pkg/redis"
)

// IdempotencyGuard is a redis fast path in front of the durable ledger. It
// sheds obvious duplicates without a database round-trip; the ledger's
// unique index remains the source of truth when redis is cold or down.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, gateway enums.Gateway, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(string(gateway), eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, gateway enums.Gateway, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(string(gateway), eventID)
	return g.store.Del(ctx, key)
}
