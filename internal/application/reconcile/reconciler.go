package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/txref"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/internal/providers"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Trigger names the channel that started a reconciliation.
type Trigger string

const (
	TriggerRedirect Trigger = "redirect"
	TriggerWebhook  Trigger = "webhook"
	TriggerManual   Trigger = "manual"
	TriggerCancel   Trigger = "cancel"
	TriggerTimeout  Trigger = "timeout"
)

// Result is what a reconciliation left behind.
type Result struct {
	OrderID int64
	Status  order.Status
	Notice  Notice
}

type action func(ctx context.Context, h EventHandler) (Notice, error)

// Reconciler coordinates the remote client and the event handlers for every
// trigger path. All calls are synchronous.
type Reconciler struct {
	orders   order.Store
	client   providers.Client
	handlers HandlerFactory
	locker   Locker
	metrics  *observability.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer

	requeries atomic.Int64
}

// NewReconciler creates a Reconciler. locker may be nil, in which case only
// the store's compare-and-swap guards concurrent triggers. A nil metrics is
// replaced by an unexposed registry.
func NewReconciler(
	orders order.Store,
	client providers.Client,
	handlers HandlerFactory,
	locker Locker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reconciler {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Reconciler{
		orders:   orders,
		client:   client,
		handlers: handlers,
		locker:   locker,
		metrics:  metrics,
		logger:   logger,
		tracer:   observability.Tracer(),
	}
}

// RequeryCount is the number of re-queries issued since start. Diagnostic
// only; it does not cap anything.
func (r *Reconciler) RequeryCount() int64 {
	return r.requeries.Load()
}

// Requery fetches the authoritative record for txRef and applies it.
func (r *Reconciler) Requery(ctx context.Context, trigger Trigger, txRef string) (*Result, error) {
	return r.run(ctx, trigger, txRef, nil, r.requeryAction(txRef))
}

// RequeryOrder re-queries the current payment attempt of an order.
func (r *Reconciler) RequeryOrder(ctx context.Context, orderID int64) (*Result, error) {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.TxRef == "" {
		return nil, domainErrors.ErrMissingTransactionRef
	}
	return r.Requery(ctx, TriggerManual, o.TxRef)
}

// WebhookVerify records webhook intake and re-queries, but only while the
// order is still awaiting a decision. Otherwise it returns
// ErrAlreadyProcessed without touching the order.
func (r *Reconciler) WebhookVerify(ctx context.Context, eventType string, data json.RawMessage, txRef string) (*Result, error) {
	requery := r.requeryAction(txRef)
	return r.run(ctx, TriggerWebhook, txRef, webhookGuard, func(ctx context.Context, h EventHandler) (Notice, error) {
		if err := h.OnWebhook(ctx, eventType, data); err != nil {
			return Notice{}, err
		}
		return requery(ctx, h)
	})
}

// CancelPayment applies the checkout's cancel signal without a re-query.
func (r *Reconciler) CancelPayment(ctx context.Context, txRef string) (*Result, error) {
	return r.run(ctx, TriggerCancel, txRef, nil, func(ctx context.Context, h EventHandler) (Notice, error) {
		return h.OnCancel(ctx, txRef)
	})
}

// Timeout records that the processor never gave a definite answer.
func (r *Reconciler) Timeout(ctx context.Context, txRef string, data json.RawMessage) (*Result, error) {
	return r.run(ctx, TriggerTimeout, txRef, nil, func(ctx context.Context, h EventHandler) (Notice, error) {
		return h.OnTimeout(ctx, txRef, data)
	})
}

// TimeoutOrder records a timeout against the current attempt of an order.
func (r *Reconciler) TimeoutOrder(ctx context.Context, orderID int64, data json.RawMessage) (*Result, error) {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.TxRef == "" {
		return nil, domainErrors.ErrMissingTransactionRef
	}
	return r.Timeout(ctx, o.TxRef, data)
}

// webhookGuard is the duplicate-delivery guard: pending, on-hold and failed
// orders may be reprocessed, anything else was already decided.
func webhookGuard(o *order.Order) error {
	switch o.Status {
	case order.StatusPending, order.StatusOnHold, order.StatusFailed:
		return nil
	default:
		return fmt.Errorf("order %d is %s: %w", o.ID, o.Status, domainErrors.ErrAlreadyProcessed)
	}
}

func (r *Reconciler) run(ctx context.Context, trigger Trigger, txRef string, guard func(*order.Order) error, act action) (*Result, error) {
	start := time.Now()
	ref, err := txref.Parse(txRef)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "reconcile."+string(trigger), trace.WithAttributes(
		attribute.Int64("order.id", ref.OrderID),
		attribute.String("payment.tx_ref", txRef),
	))
	defer span.End()

	logger := observability.OrderLogger(r.logger, ref.OrderID, txRef).With().Str("trigger", string(trigger)).Logger()

	release := r.lock(ctx, trigger, ref.OrderID, logger)
	defer release()

	res, err := r.apply(ctx, ref.OrderID, guard, act, logger)

	outcome := "error"
	switch {
	case err == nil:
		outcome = string(res.Notice.Kind)
		span.SetAttributes(attribute.String("order.status", string(res.Status)))
	case errors.Is(err, domainErrors.ErrAlreadyProcessed):
		outcome = "already_processed"
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Reconciliation failed")
	}
	r.metrics.ReconciliationsTotal.WithLabelValues(string(trigger), outcome).Inc()
	r.metrics.ReconcileDuration.WithLabelValues(string(trigger)).Observe(time.Since(start).Seconds())

	return res, err
}

// apply loads the order and runs act against a fresh handler. A lost
// compare-and-swap reloads the order and runs act once more.
func (r *Reconciler) apply(ctx context.Context, orderID int64, guard func(*order.Order) error, act action, logger zerolog.Logger) (*Result, error) {
	for attempt := 0; ; attempt++ {
		o, err := r.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("load order %d: %w", orderID, err)
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return &Result{OrderID: o.ID, Status: o.Status, Notice: statusNotice(o.Status)}, err
			}
		}

		notice, err := act(ctx, r.handlers(o))
		switch {
		case err == nil:
			return &Result{OrderID: o.ID, Status: o.Status, Notice: notice}, nil
		case errors.Is(err, domainErrors.ErrStatusConflict) && attempt == 0:
			logger.Warn().Err(err).Msg("Order changed concurrently, reloading")
		case errors.Is(err, domainErrors.ErrInvalidStateTransition):
			logger.Info().Err(err).Str("status", string(o.Status)).Msg("Outcome does not apply to the current status, order left unchanged")
			return &Result{OrderID: o.ID, Status: o.Status, Notice: statusNotice(o.Status)}, nil
		default:
			return nil, err
		}
	}
}

func (r *Reconciler) lock(ctx context.Context, trigger Trigger, orderID int64, logger zerolog.Logger) func() {
	if r.locker == nil {
		return func() {}
	}
	release, err := r.locker.Lock(ctx, orderID)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not acquire order lock, continuing without it")
		r.metrics.LockContentionTotal.WithLabelValues(string(trigger)).Inc()
		return func() {}
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Failed to release order lock")
		}
	}
}

// verification is the outcome of one re-query. Exactly one field is set.
type verification struct {
	success       *transaction.Record
	failure       *transaction.Record
	indeterminate *domainErrors.IndeterminateState
	transportErr  error
}

// requeryAction re-queries once and replays the same answer if the order has
// to be reloaded.
func (r *Reconciler) requeryAction(txRef string) action {
	var v *verification
	return func(ctx context.Context, h EventHandler) (Notice, error) {
		if v == nil {
			if err := h.OnRequery(ctx, txRef); err != nil {
				return Notice{}, err
			}
			res := r.verify(ctx, txRef)
			v = &res
		}

		switch {
		case v.transportErr != nil:
			// Left for the next webhook delivery.
			r.logger.Warn().Err(v.transportErr).Str("tx_ref", txRef).Msg("Re-query failed, order left unchanged")
			return statusNotice(h.Order().Status), nil
		case v.indeterminate != nil:
			return h.OnRequeryError(ctx, v.indeterminate)
		case v.success != nil:
			return h.OnSuccessful(ctx, v.success)
		default:
			return h.OnFailure(ctx, v.failure)
		}
	}
}

func (r *Reconciler) verify(ctx context.Context, txRef string) verification {
	r.requeries.Add(1)
	ctx, span := r.tracer.Start(ctx, "reconcile.requery", trace.WithAttributes(
		attribute.String("payment.tx_ref", txRef),
	))
	defer span.End()

	v := r.fetch(ctx, txRef)

	result := "failure"
	switch {
	case v.transportErr != nil:
		result = "transport_error"
		span.RecordError(v.transportErr)
	case v.indeterminate != nil:
		result = "indeterminate"
	case v.success != nil:
		result = "success"
	}
	span.SetAttributes(attribute.String("requery.result", result))
	r.metrics.RequeryTotal.WithLabelValues(result).Inc()
	return v
}

func (r *Reconciler) fetch(ctx context.Context, txRef string) verification {
	resp, err := r.client.Request(ctx, http.MethodGet, providers.VerifyEndpoint(txRef), nil)
	if err != nil {
		return verification{transportErr: err}
	}

	env, err := resp.DecodeEnvelope()
	if err != nil {
		return verification{indeterminate: &domainErrors.IndeterminateState{TxRef: txRef, Reason: fmt.Sprintf("unreadable response (HTTP %d)", resp.StatusCode)}}
	}
	if env.Status == "" {
		return verification{indeterminate: &domainErrors.IndeterminateState{TxRef: txRef, Reason: "response carried no status"}}
	}

	if env.Status != providers.StatusSuccess {
		rec, err := env.Record()
		if err != nil {
			rec = &transaction.Record{TxRef: txRef, Status: env.Status}
		}
		return verification{failure: rec}
	}

	rec, err := env.Record()
	if err != nil {
		return verification{indeterminate: &domainErrors.IndeterminateState{TxRef: txRef, Reason: err.Error()}}
	}
	if rec.TxRef != "" && rec.TxRef != txRef {
		return verification{indeterminate: &domainErrors.IndeterminateState{
			TxRef:  txRef,
			Reason: fmt.Sprintf("response is for reference %s", rec.TxRef),
		}}
	}
	return verification{success: rec}
}
