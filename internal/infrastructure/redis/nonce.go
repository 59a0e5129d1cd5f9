package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NonceStore keeps return nonces as nonce:<value> -> order id with a TTL.
// Verification does not consume the nonce: the customer may reload the
// return page.
type NonceStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewNonceStore(client redis.Cmdable, ttl time.Duration) *NonceStore {
	return &NonceStore{client: client, ttl: ttl}
}

func nonceKey(nonce string) string {
	return "nonce:" + nonce
}

func (s *NonceStore) Issue(ctx context.Context, orderID int64) (string, error) {
	nonce := uuid.New().String()
	if err := s.client.Set(ctx, nonceKey(nonce), orderID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

func (s *NonceStore) Verify(ctx context.Context, nonce string, orderID int64) error {
	if nonce == "" {
		return domainErrors.ErrNonceInvalid
	}
	val, err := s.client.Get(ctx, nonceKey(nonce)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainErrors.ErrNonceInvalid
		}
		return fmt.Errorf("load nonce: %w", err)
	}
	if val != strconv.FormatInt(orderID, 10) {
		return domainErrors.ErrNonceInvalid
	}
	return nil
}

func (s *NonceStore) Revoke(ctx context.Context, nonce string) error {
	if err := s.client.Del(ctx, nonceKey(nonce)).Err(); err != nil {
		return fmt.Errorf("revoke nonce: %w", err)
	}
	return nil
}
