package reconcile

import (
	"context"
	"encoding/json"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NoticeKind is the outcome category shown to the customer.
type NoticeKind string

const (
	NoticeSuccess   NoticeKind = "success"
	NoticeHold      NoticeKind = "hold"
	NoticeFailure   NoticeKind = "failure"
	NoticeCancelled NoticeKind = "cancelled"
	NoticePending   NoticeKind = "pending"
)

// Notice is the single customer-visible message produced by a handler call.
// It never carries processor payloads.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

const (
	msgPaymentSuccessful  = "Thank you for your order. Your payment was successful, we are now processing your order."
	msgPaymentUnverified  = "Thank you for your order. Your payment successfully went through, but we have to put your order on-hold because we couldn't verify your order. Please, contact us for information regarding this order."
	msgPaymentUnconfirmed = "Thank you for your order. We had an issue confirming your payment, but we have put your order on-hold. Please, contact us for information regarding this order."
	msgPaymentFailed      = "Your payment failed. Please, try again or use another payment method."
	msgPaymentCancelled   = "Your payment was cancelled."
	msgPaymentPending     = "We are still confirming your payment. Your order will be updated once the payment is confirmed."
	msgPaymentInitialized = "Payment initialized. You will be redirected to complete your payment."
)

// EventHandler applies one reconciliation outcome to the order it holds.
// A handler is built per call and is not safe for concurrent use.
type EventHandler interface {
	Order() *order.Order
	OnInit(ctx context.Context, txRef string) (Notice, error)
	OnSuccessful(ctx context.Context, rec *transaction.Record) (Notice, error)
	OnFailure(ctx context.Context, rec *transaction.Record) (Notice, error)
	OnRequery(ctx context.Context, txRef string) error
	OnRequeryError(ctx context.Context, state *domainErrors.IndeterminateState) (Notice, error)
	OnCancel(ctx context.Context, txRef string) (Notice, error)
	OnTimeout(ctx context.Context, txRef string, data json.RawMessage) (Notice, error)
	OnWebhook(ctx context.Context, eventType string, data json.RawMessage) error
}

// Policy holds the merchant settings the decision procedure depends on.
type Policy struct {
	Epsilon      decimal.Decimal
	AutoComplete bool
}

func DefaultPolicy() Policy {
	return Policy{Epsilon: decimal.RequireFromString("0.01")}
}

func PolicyFromConfig(cfg config.ReconcileConfig) Policy {
	return Policy{
		Epsilon:      decimal.NewFromFloat(cfg.Epsilon),
		AutoComplete: cfg.AutoComplete,
	}
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Orders  order.Store
	Carts   order.CartStore
	Tokens  order.TokenStore
	Tx      TxRunner
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// HandlerFactory builds the handler for one order.
type HandlerFactory func(o *order.Order) EventHandler

// NewHandlerFactory selects the standard or the subscription-aware handler.
func NewHandlerFactory(deps Deps, policy Policy, subscriptions bool) HandlerFactory {
	if subscriptions {
		return func(o *order.Order) EventHandler {
			return NewSubscriptionHandler(o, deps, policy)
		}
	}
	return func(o *order.Order) EventHandler {
		return NewStandardHandler(o, deps, policy)
	}
}

// statusNotice describes an order that was left as it was.
func statusNotice(s order.Status) Notice {
	switch s {
	case order.StatusProcessing, order.StatusCompleted:
		return Notice{Kind: NoticeSuccess, Message: msgPaymentSuccessful}
	case order.StatusOnHold:
		return Notice{Kind: NoticeHold, Message: msgPaymentUnconfirmed}
	case order.StatusFailed:
		return Notice{Kind: NoticeFailure, Message: msgPaymentFailed}
	case order.StatusCancelled:
		return Notice{Kind: NoticeCancelled, Message: msgPaymentCancelled}
	default:
		return Notice{Kind: NoticePending, Message: msgPaymentPending}
	}
}
