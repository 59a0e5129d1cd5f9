package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/internal/providers"
	"github.com/cassiomorais/checkout-reconciler/pkg/saga"
	"github.com/rs/zerolog"
)

// InitiateResult is where the customer has to be sent to pay.
type InitiateResult struct {
	OrderID int64  `json:"order_id"`
	TxRef   string `json:"tx_ref"`
	Link    string `json:"link"`
}

// InitiateUseCase starts a payment attempt for an order.
type InitiateUseCase struct {
	orders    order.Store
	builder   *RequestBuilder
	nonces    NonceStore
	client    providers.Client
	handlers  reconcile.HandlerFactory
	secretKey string
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewInitiateUseCase creates a new InitiateUseCase.
func NewInitiateUseCase(
	orders order.Store,
	builder *RequestBuilder,
	nonces NonceStore,
	client providers.Client,
	handlers reconcile.HandlerFactory,
	secretKey string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *InitiateUseCase {
	return &InitiateUseCase{
		orders:    orders,
		builder:   builder,
		nonces:    nonces,
		client:    client,
		handlers:  handlers,
		secretKey: secretKey,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute builds and submits the initiation request and returns the hosted
// checkout link. On failure the issued nonce is revoked.
func (uc *InitiateUseCase) Execute(ctx context.Context, orderID int64) (*InitiateResult, error) {
	o, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsPaid() {
		uc.record("already_paid")
		return nil, domainErrors.ErrOrderAlreadyPaid
	}

	payload, err := uc.builder.Prepare(o, uc.secretKey)
	if err != nil {
		uc.record("unconfigured")
		return nil, err
	}

	logger := observability.OrderLogger(uc.logger, o.ID, payload.TxRef)
	var nonce, link string

	s := saga.New("checkout-initiate").
		AddStep(saga.Step{
			Name: "issue-nonce",
			Execute: func(ctx context.Context) error {
				n, err := uc.nonces.Issue(ctx, o.ID)
				if err != nil {
					return fmt.Errorf("issue return nonce: %w", err)
				}
				nonce = n
				return payload.WithNonce(n)
			},
			Compensate: func(ctx context.Context) error {
				if nonce == "" {
					return nil
				}
				return uc.nonces.Revoke(ctx, nonce)
			},
		}).
		AddStep(saga.Step{
			Name: "record-attempt",
			Execute: func(ctx context.Context) error {
				_, err := uc.handlers(o).OnInit(ctx, payload.TxRef)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "create-payment",
			Execute: func(ctx context.Context) error {
				l, err := uc.createPayment(ctx, payload)
				if err != nil {
					return err
				}
				link = l
				return nil
			},
		})

	if err := s.Execute(ctx); err != nil {
		result := "error"
		switch {
		case domainErrors.IsTransportError(err):
			result = "transport_error"
		case errors.Is(err, domainErrors.ErrProviderRejected):
			result = "rejected"
		}
		uc.record(result)
		logger.Error().Err(err).Msg("Payment initiation failed")
		return nil, err
	}

	uc.record("initiated")
	logger.Info().Msg("Payment initiated")
	return &InitiateResult{OrderID: o.ID, TxRef: payload.TxRef, Link: link}, nil
}

func (uc *InitiateUseCase) createPayment(ctx context.Context, payload *Payload) (string, error) {
	resp, err := uc.client.Request(ctx, http.MethodPost, providers.EndpointPayments, payload)
	if err != nil {
		return "", domainErrors.NewDomainError("processor_unreachable",
			"Unable to connect to the payment gateway, please try again", err)
	}

	env, err := resp.DecodeEnvelope()
	if err != nil {
		return "", domainErrors.NewDomainError("processor_rejected", "The payment gateway returned an unreadable response", errors.Join(domainErrors.ErrProviderRejected, err))
	}
	if env.Status != providers.StatusSuccess {
		msg := env.Message
		if msg == "" {
			msg = "The payment gateway did not accept the payment request"
		}
		return "", domainErrors.NewDomainError("processor_rejected", msg, domainErrors.ErrProviderRejected)
	}
	return env.Link()
}

func (uc *InitiateUseCase) record(result string) {
	if uc.metrics != nil {
		uc.metrics.CheckoutsTotal.WithLabelValues(result).Inc()
	}
}
