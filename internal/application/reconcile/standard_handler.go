package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// tokenPersister stores the reusable card credential after a verified payment.
type tokenPersister interface {
	persist(ctx context.Context, orderID int64, token string) error
}

type orderTokens struct {
	store order.TokenStore
}

func (p orderTokens) persist(ctx context.Context, orderID int64, token string) error {
	return p.store.SaveOrderToken(ctx, orderID, token)
}

// StandardHandler drives a regular one-off order.
type StandardHandler struct {
	order   *order.Order
	orders  order.Store
	carts   order.CartStore
	tokens  tokenPersister
	policy  Policy
	metrics *observability.Metrics
	base    zerolog.Logger
	logger  zerolog.Logger
}

func NewStandardHandler(o *order.Order, deps Deps, policy Policy) *StandardHandler {
	h := &StandardHandler{
		order:   o,
		orders:  deps.Orders,
		carts:   deps.Carts,
		policy:  policy,
		metrics: deps.Metrics,
		base:    deps.Logger,
		logger:  observability.OrderLogger(deps.Logger, o.ID, o.TxRef),
	}
	if deps.Tokens != nil {
		h.tokens = orderTokens{store: deps.Tokens}
	}
	return h
}

func (h *StandardHandler) Order() *order.Order {
	return h.order
}

// OnInit records the reference of a new payment attempt.
func (h *StandardHandler) OnInit(ctx context.Context, txRef string) (Notice, error) {
	if err := h.transition(ctx, order.EventInit); err != nil {
		return Notice{}, err
	}
	if err := h.orders.SetTxRef(ctx, h.order.ID, txRef); err != nil {
		return Notice{}, fmt.Errorf("record reference on order %d: %w", h.order.ID, err)
	}
	h.order.TxRef = txRef
	h.logger = observability.OrderLogger(h.base, h.order.ID, txRef)

	h.addNote(ctx, "Payment initialized via Flutterwave", false)
	h.addNote(ctx, "Your transaction reference: "+txRef, false)
	return Notice{Kind: NoticePending, Message: msgPaymentInitialized}, nil
}

// OnSuccessful verifies amount and currency before marking the order paid.
func (h *StandardHandler) OnSuccessful(ctx context.Context, rec *transaction.Record) (Notice, error) {
	if !rec.Successful() {
		return h.OnFailure(ctx, rec)
	}
	if h.order.Status.IsPaid() {
		h.logger.Info().Str("status", string(h.order.Status)).Msg("Order already paid, nothing to do")
		return Notice{Kind: NoticeSuccess, Message: msgPaymentSuccessful}, nil
	}

	if mismatch := h.verify(rec); mismatch != nil {
		if err := h.transition(ctx, order.EventVerifiedMismatch); err != nil {
			return Notice{}, err
		}
		h.logger.Warn().Err(mismatch).Msg("Payment amount or currency does not match the order")
		h.addNote(ctx, msgPaymentUnverified, true)
		h.addNote(ctx, fmt.Sprintf(
			"Attention: New order has been placed on hold because of incorrect payment amount or currency. Please, look into it. Amount paid: %s %s Order amount: %s %s Reference: %s",
			mismatch.ClaimedCurrency, mismatch.ClaimedAmount, mismatch.ExpectedCurrency, mismatch.ExpectedAmount, mismatch.TxRef,
		), false)
		return Notice{Kind: NoticeHold, Message: msgPaymentUnverified}, nil
	}

	if err := h.transition(ctx, order.EventVerifiedSuccess); err != nil {
		return Notice{}, err
	}
	if h.policy.AutoComplete {
		if err := h.transition(ctx, order.EventAutoComplete); err != nil {
			return Notice{}, err
		}
	}

	h.addNote(ctx, "Payment was successful on Flutterwave", false)
	h.addNote(ctx, "Flutterwave transaction reference: "+rec.FlwRef, false)
	h.addNote(ctx, msgPaymentSuccessful, true)

	if token := rec.PaymentToken(); token != "" && h.tokens != nil {
		if err := h.tokens.persist(ctx, h.order.ID, token); err != nil {
			h.logger.Error().Err(err).Msg("Failed to save payment token")
		}
	}
	if h.carts != nil {
		if err := h.carts.EmptyActiveCart(ctx, h.order.CustomerID); err != nil {
			h.logger.Error().Err(err).Int64("customer_id", h.order.CustomerID).Msg("Failed to empty cart")
		}
	}

	h.logger.Info().Str("status", string(h.order.Status)).Msg("Payment verified")
	return Notice{Kind: NoticeSuccess, Message: msgPaymentSuccessful}, nil
}

// verify returns nil when the record pays the order in full.
func (h *StandardHandler) verify(rec *transaction.Record) *domainErrors.VerificationMismatch {
	amountOK := rec.Amount.Sub(h.order.Total).Abs().LessThanOrEqual(h.policy.Epsilon)
	if rec.Currency == h.order.Currency && amountOK {
		return nil
	}
	txRef := rec.TxRef
	if txRef == "" {
		txRef = h.order.TxRef
	}
	return &domainErrors.VerificationMismatch{
		TxRef:            txRef,
		ClaimedAmount:    rec.Amount.String(),
		ClaimedCurrency:  rec.Currency,
		ExpectedAmount:   h.order.Total.StringFixed(2),
		ExpectedCurrency: h.order.Currency,
	}
}

func (h *StandardHandler) OnFailure(ctx context.Context, rec *transaction.Record) (Notice, error) {
	if err := h.transition(ctx, order.EventFailure); err != nil {
		return Notice{}, err
	}
	h.addNote(ctx, "The payment failed on Flutterwave", false)
	h.addNote(ctx, "Reason for Failure : "+rec.FailureReason(), false)

	h.logger.Info().Str("processor_status", rec.Status).Msg("Payment failed")
	return Notice{Kind: NoticeFailure, Message: msgPaymentFailed}, nil
}

func (h *StandardHandler) OnRequery(ctx context.Context, txRef string) error {
	h.addNote(ctx, "Confirming payment on Flutterwave", false)
	return nil
}

// OnRequeryError parks the order when the processor gave no usable status.
func (h *StandardHandler) OnRequeryError(ctx context.Context, state *domainErrors.IndeterminateState) (Notice, error) {
	if err := h.transition(ctx, order.EventRequeryError); err != nil {
		return Notice{}, err
	}
	h.addNote(ctx, "An error occurred while confirming payment on Flutterwave", false)
	h.addNote(ctx, msgPaymentUnconfirmed, true)
	h.addNote(ctx, "Attention: New order has been placed on hold because we could not confirm the payment. Please, look into it. Payment Response: "+state.Reason, false)

	h.logger.Warn().Err(state).Msg("Payment could not be confirmed")
	return Notice{Kind: NoticeHold, Message: msgPaymentUnconfirmed}, nil
}

// OnCancel takes the checkout's cancel signal at face value. The charge may
// already have succeeded, so staff are told to look for a success note.
func (h *StandardHandler) OnCancel(ctx context.Context, txRef string) (Notice, error) {
	if err := h.transition(ctx, order.EventCancel); err != nil {
		return Notice{}, err
	}
	h.addNote(ctx, "The customer clicked on the cancel button on Checkout.", false)
	h.addNote(ctx, "Attention: Customer clicked on the cancel button on the payment gateway. We have updated the order to cancelled status. Please, confirm from the order notes that there is no note of a successful transaction. If there is, this means that the user was debited and you either have to give value for the transaction or refund the customer.", false)

	h.logger.Info().Msg("Payment cancelled by customer")
	return Notice{Kind: NoticeCancelled, Message: msgPaymentCancelled}, nil
}

func (h *StandardHandler) OnTimeout(ctx context.Context, txRef string, data json.RawMessage) (Notice, error) {
	if err := h.transition(ctx, order.EventTimeout); err != nil {
		return Notice{}, err
	}
	h.addNote(ctx, "The payment didn't return a valid response. It could have timed out or abandoned by the customer on Flutterwave", false)
	h.addNote(ctx, msgPaymentUnconfirmed, true)
	h.addNote(ctx, "Attention: New order has been placed on hold because we could not get a definite response from the payment gateway. Kindly contact the Flutterwave support team to confirm the payment. Payment Reference: "+txRef, false)

	h.logger.Warn().Int("payload_bytes", len(data)).Msg("Payment timed out")
	return Notice{Kind: NoticeHold, Message: msgPaymentUnconfirmed}, nil
}

// OnWebhook only records intake. The re-query that follows decides.
func (h *StandardHandler) OnWebhook(ctx context.Context, eventType string, data json.RawMessage) error {
	h.logger.Info().Str("event", eventType).Int("payload_bytes", len(data)).Msg("Webhook received")
	return nil
}

// transition applies ev and persists it with a compare-and-swap on the
// status the order was loaded with. Self-loops are not written.
func (h *StandardHandler) transition(ctx context.Context, ev order.Event) error {
	from, err := h.order.Apply(ev)
	if err != nil {
		return err
	}
	to := h.order.Status
	if to == from {
		return nil
	}
	if err := h.orders.UpdateStatus(ctx, h.order.ID, from, to); err != nil {
		h.order.Status = from
		return fmt.Errorf("move order %d from %s to %s: %w", h.order.ID, from, to, err)
	}
	if h.metrics != nil {
		h.metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	h.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Order status changed")
	return nil
}

// addNote is best effort once the status is committed.
func (h *StandardHandler) addNote(ctx context.Context, body string, customerFacing bool) {
	note := order.NewNote(h.order.ID, body, customerFacing)
	if err := h.orders.AddNote(ctx, note); err != nil {
		h.logger.Error().Err(err).Bool("customer_facing", customerFacing).Msg("Failed to add order note")
		return
	}
	h.order.Notes = append(h.order.Notes, note)
}
