package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository implements order.Store using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetByID retrieves an order and its notes.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT id, total::text, currency, billing_email, billing_phone, billing_first_name, billing_last_name,
		        customer_id, customer_ip, customer_user_agent, payment_method, status, tx_ref, created_at, updated_at
		 FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	notes, err := r.Notes(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Notes = notes
	return o, nil
}

// UpdateStatus is a compare-and-swap on the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to order.Status) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing order from a lost race.
	var exists bool
	if err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return domainErrors.ErrOrderNotFound
	}
	return fmt.Errorf("order %d is no longer %s: %w", id, from, domainErrors.ErrStatusConflict)
}

// SetTxRef records the reference of the current attempt.
func (r *OrderRepository) SetTxRef(ctx context.Context, id int64, txRef string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET tx_ref = $1, updated_at = NOW() WHERE id = $2`, txRef, id)
	if err != nil {
		return fmt.Errorf("set tx_ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// AddNote appends a note.
func (r *OrderRepository) AddNote(ctx context.Context, n *order.Note) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO order_notes (id, order_id, body, customer_facing, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.OrderID, n.Body, n.CustomerFacing, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order note: %w", err)
	}
	return nil
}

// Notes lists an order's notes oldest first.
func (r *OrderRepository) Notes(ctx context.Context, orderID int64) ([]*order.Note, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, order_id, body, customer_facing, created_at
		 FROM order_notes WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order notes: %w", err)
	}
	defer rows.Close()

	var notes []*order.Note
	for rows.Next() {
		n := &order.Note{}
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Body, &n.CustomerFacing, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		totalStr string
		status   string
		txRef    *string
	)
	err := s.Scan(
		&o.ID, &totalStr, &o.Currency, &o.Billing.Email, &o.Billing.Phone, &o.Billing.FirstName, &o.Billing.LastName,
		&o.CustomerID, &o.CustomerIP, &o.CustomerUserAgent, &o.PaymentMethod, &status, &txRef, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if o.Total, err = numericToDecimal(totalStr); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if o.Status, err = order.ParseStatus(status); err != nil {
		return nil, err
	}
	if txRef != nil {
		o.TxRef = *txRef
	}
	return o, nil
}
