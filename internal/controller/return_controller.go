package controller

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cassiomorais/checkout-reconciler/internal/application/checkout"
	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/txref"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/rs/zerolog"
)

// ReturnController handles the customer's browser coming back from the
// hosted checkout. The nonce issued at initiation must match the order.
type ReturnController struct {
	reconciler *reconcile.Reconciler
	nonces     checkout.NonceStore
	urls       config.ReconcileConfig
	logger     zerolog.Logger
}

func NewReturnController(reconciler *reconcile.Reconciler, nonces checkout.NonceStore, urls config.ReconcileConfig, logger zerolog.Logger) *ReturnController {
	return &ReturnController{
		reconciler: reconciler,
		nonces:     nonces,
		urls:       urls,
		logger:     logger.With().Str("component", "return").Logger(),
	}
}

// Return handles GET /payment/return
func (c *ReturnController) Return(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txRef := q.Get("tx_ref")

	orderID, ok := c.orderID(q.Get("order_id"), txRef)
	if !ok {
		c.toCart(w, r)
		return
	}
	logger := c.logger.With().Int64("order_id", orderID).Str("tx_ref", txRef).Logger()

	if err := c.nonces.Verify(r.Context(), q.Get("nonce"), orderID); err != nil {
		if errors.Is(err, domainErrors.ErrNonceInvalid) {
			logger.Warn().Msg("Payment return rejected: missing or invalid nonce")
		} else {
			logger.Error().Err(err).Msg("Payment return nonce check failed")
		}
		c.toCart(w, r)
		return
	}

	if q.Get("status") == "cancelled" {
		if txRef != "" {
			if _, err := c.reconciler.CancelPayment(r.Context(), txRef); err != nil {
				logger.Error().Err(err).Msg("Cancel payment failed")
			}
		}
		c.toCart(w, r)
		return
	}

	if txRef == "" {
		c.toCart(w, r)
		return
	}

	notice := reconcile.NoticePending
	res, err := c.reconciler.Requery(r.Context(), reconcile.TriggerRedirect, txRef)
	if err != nil {
		logger.Error().Err(err).Msg("Payment return re-query failed")
	} else if res.Notice.Kind != "" {
		notice = res.Notice.Kind
	}

	http.Redirect(w, r, c.orderReceivedURL(orderID, notice), http.StatusFound)
}

// orderID takes the order from the redirect's order_id, or from the tx_ref
// when absent. Both must agree when both are present.
func (c *ReturnController) orderID(raw, txRef string) (int64, bool) {
	var fromRef int64
	if txRef != "" {
		ref, err := txref.Parse(txRef)
		if err != nil {
			return 0, false
		}
		fromRef = ref.OrderID
	}
	if raw == "" {
		return fromRef, fromRef > 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	if fromRef != 0 && fromRef != id {
		return 0, false
	}
	return id, true
}

func (c *ReturnController) orderReceivedURL(orderID int64, notice reconcile.NoticeKind) string {
	target := strings.ReplaceAll(c.urls.OrderReceivedURL, "{order_id}", strconv.FormatInt(orderID, 10))
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("notice", string(notice))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *ReturnController) toCart(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, c.urls.CartURL, http.StatusFound)
}
