package reconcile

import (
	"context"
	"fmt"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
)

// subscriptionTokens saves the token on the order and on every subscription
// the order started, so renewals can be charged.
// All writes share one transaction when a TxRunner is configured.
type subscriptionTokens struct {
	store order.TokenStore
	tx    TxRunner
}

func (p subscriptionTokens) persist(ctx context.Context, orderID int64, token string) error {
	if p.tx == nil {
		return p.save(ctx, orderID, token)
	}
	return p.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return p.save(ctx, orderID, token)
	})
}

func (p subscriptionTokens) save(ctx context.Context, orderID int64, token string) error {
	if err := p.store.SaveOrderToken(ctx, orderID, token); err != nil {
		return err
	}
	ids, err := p.store.SubscriptionIDsForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list subscriptions of order %d: %w", orderID, err)
	}
	for _, id := range ids {
		if err := p.store.SaveSubscriptionToken(ctx, id, token); err != nil {
			return fmt.Errorf("save token on subscription %d: %w", id, err)
		}
	}
	return nil
}

// SubscriptionHandler is the handler for stores that sell subscriptions.
// It differs from StandardHandler only in where card tokens are kept.
type SubscriptionHandler struct {
	*StandardHandler
}

func NewSubscriptionHandler(o *order.Order, deps Deps, policy Policy) *SubscriptionHandler {
	h := NewStandardHandler(o, deps, policy)
	if deps.Tokens != nil {
		h.tokens = subscriptionTokens{store: deps.Tokens, tx: deps.Tx}
	}
	return &SubscriptionHandler{StandardHandler: h}
}
