package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyEntry is a stored checkout response keyed by the client's
// Idempotency-Key.
type IdempotencyEntry struct {
	Key            string    `db:"key"`
	ResponseBody   string    `db:"response_body"`
	ResponseStatus int       `db:"response_status"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
}

// cleanupBatch bounds how many rows a single DELETE touches.
const cleanupBatch = 1000

type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns nil, nil when the key is unknown or expired.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*IdempotencyEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT key, response_body, response_status, created_at, expires_at
		 FROM idempotency_keys
		 WHERE key = $1 AND expires_at > NOW()`, key)
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	entry, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[IdempotencyEntry])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan idempotency key: %w", err)
	}
	return entry, nil
}

// Set stores the first response for a key. A concurrent duplicate keeps the
// row that won.
func (r *IdempotencyRepository) Set(ctx context.Context, entry *IdempotencyEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, response_body, response_status, created_at, expires_at)
		 VALUES (@key, @body, @status, @created, @expires)
		 ON CONFLICT (key) DO NOTHING`,
		pgx.NamedArgs{
			"key":     entry.Key,
			"body":    entry.ResponseBody,
			"status":  entry.ResponseStatus,
			"created": entry.CreatedAt,
			"expires": entry.ExpiresAt,
		},
	)
	if err != nil {
		return fmt.Errorf("store idempotency key %q: %w", entry.Key, err)
	}
	return nil
}

// Cleanup deletes expired keys in batches and reports how many were removed.
func (r *IdempotencyRepository) Cleanup(ctx context.Context) (int64, error) {
	var removed int64
	for {
		tag, err := r.db(ctx).Exec(ctx,
			`DELETE FROM idempotency_keys
			 WHERE key IN (
			     SELECT key FROM idempotency_keys WHERE expires_at < NOW() LIMIT $1
			 )`, cleanupBatch)
		if err != nil {
			return removed, fmt.Errorf("cleanup idempotency keys: %w", err)
		}
		removed += tag.RowsAffected()
		if tag.RowsAffected() < cleanupBatch {
			return removed, nil
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
	}
}
