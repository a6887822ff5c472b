package reconcile

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

type inMemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{values: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = "1"
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{"ps", "idempotency", scope, id}, ":")
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestIdempotencyGuard_CheckAndMark(t *testing.T) {
	guard, err := NewIdempotencyGuard(newInMemoryStore(), time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, enums.GatewayCardnet, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, enums.GatewayCardnet, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same id through another gateway is a distinct event.
	seen, err = guard.CheckAndMark(ctx, enums.GatewayPaytec, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuard_Delete(t *testing.T) {
	guard, err := NewIdempotencyGuard(newInMemoryStore(), time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, enums.GatewayCardnet, "evt-2")
	require.NoError(t, err)
	require.NoError(t, guard.Delete(ctx, enums.GatewayCardnet, "evt-2"))

	seen, err := guard.CheckAndMark(ctx, enums.GatewayCardnet, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuard_RequiresStore(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Minute)
	require.Error(t, err)
}
