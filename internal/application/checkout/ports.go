package checkout

import (
	"context"
)

// NonceStore issues single-order nonces that the synchronous return must
// echo back.
type NonceStore interface {
	Issue(ctx context.Context, orderID int64) (string, error)
	Verify(ctx context.Context, nonce string, orderID int64) error
	Revoke(ctx context.Context, nonce string) error
}
