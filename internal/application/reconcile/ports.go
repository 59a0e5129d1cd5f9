package reconcile

import (
	"context"
)

// Locker serialises reconciliation runs for one order across instances.
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, orderID int64) (release func(context.Context) error, err error)
}

// TxRunner runs fn inside one database transaction carried by ctx.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
