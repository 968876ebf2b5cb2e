// Package dedupe stops the same client-side trip from being ingested twice
// when a mobile client retries a submission.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "trip-submission:"
	pending   = "pending"
)

// Guard is safe to use as a nil pointer, in which case every claim succeeds.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if client == nil {
		return nil
	}
	return &Guard{client: client, ttl: ttl}
}

func key(ownerID, clientID string) string {
	return keyPrefix + ownerID + ":" + clientID
}

// Claim marks the submission as in progress. It reports false when the
// submission was already claimed or completed.
func (g *Guard) Claim(ctx context.Context, ownerID, clientID string) (bool, error) {
	if g == nil || clientID == "" {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, key(ownerID, clientID), pending, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim submission %s: %w", clientID, err)
	}
	return ok, nil
}

// Complete records the trip the submission produced.
func (g *Guard) Complete(ctx context.Context, ownerID, clientID, tripID string) error {
	if g == nil || clientID == "" {
		return nil
	}
	return g.client.Set(ctx, key(ownerID, clientID), tripID, g.ttl).Err()
}

// Lookup returns the trip id of a completed submission, or "" if it is
// unknown or still in progress.
func (g *Guard) Lookup(ctx context.Context, ownerID, clientID string) (string, error) {
	if g == nil || clientID == "" {
		return "", nil
	}
	val, err := g.client.Get(ctx, key(ownerID, clientID)).Result()
	if errors.Is(err, redis.Nil) || val == pending {
		return "", nil
	}
	return val, err
}

// Release forgets a claim so the client may retry.
func (g *Guard) Release(ctx context.Context, ownerID, clientID string) error {
	if g == nil || clientID == "" {
		return nil
	}
	return g.client.Del(ctx, key(ownerID, clientID)).Err()
}
