package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Idempotency remembers which appointment a client's Idempotency-Key
// produced, so a retried request gets the same answer. Keys are scoped to
// the shop and the caller; two customers picking the same key never share.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

func (i *Idempotency) Lookup(ctx context.Context, shopOwnerID, userID, key string) (string, bool, error) {
	id, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdemBooking, shopOwnerID, userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, shopOwnerID, userID, key, appointmentID string) error {
	return i.rdb.SetNX(ctx, fmt.Sprintf(KeyIdemBooking, shopOwnerID, userID, key), appointmentID, TTLIdempotency).Err()
}
