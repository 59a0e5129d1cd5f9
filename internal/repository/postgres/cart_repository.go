package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepository implements order.CartStore.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// EmptyActiveCart removes every item from the customer's active cart. Guest
// checkouts (customer 0) have no server-side cart.
func (r *CartRepository) EmptyActiveCart(ctx context.Context, customerID int64) error {
	if customerID == 0 {
		return nil
	}
	_, err := r.db(ctx).Exec(ctx,
		`DELETE FROM cart_items
		 WHERE cart_id IN (SELECT id FROM carts WHERE customer_id = $1 AND active)`, customerID)
	if err != nil {
		return fmt.Errorf("empty cart: %w", err)
	}
	return nil
}
