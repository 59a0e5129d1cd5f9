package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository implements order.TokenStore.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *TokenRepository) SaveOrderToken(ctx context.Context, orderID int64, token string) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_tokens (order_id, token, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (order_id) DO UPDATE SET token = EXCLUDED.token`, orderID, token)
	if err != nil {
		return fmt.Errorf("save payment token: %w", err)
	}
	return nil
}

func (r *TokenRepository) SubscriptionIDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id FROM subscriptions WHERE parent_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TokenRepository) SaveSubscriptionToken(ctx context.Context, subscriptionID int64, token string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE subscriptions SET payment_token = $1, updated_at = NOW() WHERE id = $2`, token, subscriptionID)
	if err != nil {
		return fmt.Errorf("save subscription token: %w", err)
	}
	return nil
}
