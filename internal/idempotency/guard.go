// Package idempotency provides the one cross-request mutual-exclusion
// primitive the system relies on: an atomic reserve-with-TTL backed by redis
// SET NX. Whoever reserves a key first owns the action for the key's retry
// window.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// TTLs are tuned to each action's expected retry window.
	CallbackTTL        = 10 * time.Minute
	AdminActionTTL     = 30 * time.Second
	DiscountAttemptTTL = 30 * time.Minute
)

type Guard struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewGuard(client *redis.Client, log *zap.Logger) *Guard {
	return &Guard{
		redis: client,
		log:   log.Named("idempotency.guard"),
	}
}

// Reserve atomically creates key with a short-lived marker only if it is
// absent. It returns true iff this call created the key, i.e. this caller
// acquired the reservation. The SET NX round trip is the atomic boundary;
// there is no read-then-write gap.
func (g *Guard) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency reserve %q: %w", key, err)
	}
	return ok, nil
}

// Release drops a reservation before its TTL expires so the action can be
// retried. Used when the reserved work failed and the caller wants the next
// delivery attempt to run instead of collapsing into the dead reservation.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency release %q: %w", key, err)
	}
	return nil
}

// ReserveCallback guards one-shot callback-button handling.
func (g *Guard) ReserveCallback(ctx context.Context, callbackID string) (bool, error) {
	return g.Reserve(ctx, "cbq:"+callbackID, CallbackTTL)
}

// ReleaseCallback reopens a callback reservation after a failed attempt.
func (g *Guard) ReleaseCallback(ctx context.Context, callbackID string) error {
	return g.Release(ctx, "cbq:"+callbackID)
}

// ReserveAdminAction guards one-shot admin quick actions (approve/dismiss).
func (g *Guard) ReserveAdminAction(ctx context.Context, action, entityID, adminID string) (bool, error) {
	key := fmt.Sprintf("admin:action:%s:%s:%s", action, entityID, adminID)
	return g.Reserve(ctx, key, AdminActionTTL)
}

// ReserveDiscountAttempt guards discount evaluation for a single buy attempt,
// keyed by the content fingerprint of the attempt's inputs.
func (g *Guard) ReserveDiscountAttempt(ctx context.Context, fingerprint string) (bool, error) {
	return g.Reserve(ctx, "discount:apply:lock:"+fingerprint, DiscountAttemptTTL)
}
