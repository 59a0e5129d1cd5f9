package order

import (
	"context"
)

// Store is the order persistence boundary.
type Store interface {
	// GetByID loads an order with its notes.
	GetByID(ctx context.Context, id int64) (*Order, error)

	// UpdateStatus moves the order to `to` only if its stored status is still
	// `from`. Returns errors.ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error

	// SetTxRef records the reference of the current payment attempt.
	SetTxRef(ctx context.Context, id int64, txRef string) error

	// AddNote appends a note.
	AddNote(ctx context.Context, note *Note) error
}

// CartStore empties the buyer's active cart after a confirmed payment.
type CartStore interface {
	EmptyActiveCart(ctx context.Context, customerID int64) error
}

// TokenStore keeps reusable card tokens for recurring charges.
type TokenStore interface {
	SaveOrderToken(ctx context.Context, orderID int64, token string) error
	SubscriptionIDsForOrder(ctx context.Context, orderID int64) ([]int64, error)
	SaveSubscriptionToken(ctx context.Context, subscriptionID int64, token string) error
}
