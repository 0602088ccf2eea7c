package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewGuard(client, zap.NewNop()), mr
}

func TestReserveFirstCallerWins(t *testing.T) {
	guard, _ := newGuard(t)
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "cbq:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = guard.Reserve(ctx, "cbq:abc", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// A different key is an independent reservation.
	ok, err = guard.Reserve(ctx, "cbq:def", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReserveAvailableAgainAfterTTL(t *testing.T) {
	guard, mr := newGuard(t)
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "admin:action:approve:1:9", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = guard.Reserve(ctx, "admin:action:approve:1:9", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReserveHelpersNamespaceKeys(t *testing.T) {
	guard, mr := newGuard(t)
	ctx := context.Background()

	ok, err := guard.ReserveCallback(ctx, "cb-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("cbq:cb-1"))

	ok, err = guard.ReserveAdminAction(ctx, "approve", "order-1", "admin-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("admin:action:approve:order-1:admin-1"))

	fp := Fingerprint(map[string]any{"user": "u1"})
	ok, err = guard.ReserveDiscountAttempt(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("discount:apply:lock:"+fp))
}

func TestFingerprintIgnoresMapKeyOrder(t *testing.T) {
	a := Fingerprint(map[string]any{"user": "u1", "service": "s1", "fields": map[string]any{"b": "2", "a": "1"}})
	b := Fingerprint(map[string]any{"fields": map[string]any{"a": "1", "b": "2"}, "service": "s1", "user": "u1"})
	require.Equal(t, a, b)

	c := Fingerprint(map[string]any{"user": "u2", "service": "s1", "fields": map[string]any{"a": "1", "b": "2"}})
	require.NotEqual(t, a, c)
}

func TestFingerprintDistinguishesNestedValues(t *testing.T) {
	a := Fingerprint([]any{map[string]any{"x": 1}, "tail"})
	b := Fingerprint([]any{map[string]any{"x": 2}, "tail"})
	require.NotEqual(t, a, b)
}
