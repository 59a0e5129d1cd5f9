package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/txref"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	EventTestAssess      = "test_assess"
	EventChargeCompleted = "charge.completed"
)

// WebhookController takes processor notifications. It runs behind the
// signature middleware, so every request it sees is authenticated.
type WebhookController struct {
	reconciler *reconcile.Reconciler
	homeURL    string
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewWebhookController(reconciler *reconcile.Reconciler, homeURL string, metrics *observability.Metrics, logger zerolog.Logger) *WebhookController {
	return &WebhookController{
		reconciler: reconciler,
		homeURL:    homeURL,
		metrics:    metrics,
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// Handle handles POST /payment/webhook
func (c *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		c.record("unknown", "unreadable")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || (ev.Event == "" && isEmptyJSON(ev.Data)) {
		c.record("unknown", "malformed")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch ev.Event {
	case EventTestAssess:
		c.record(ev.Event, "test")
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "success", Message: "Webhook Test Successful. handler is accessible"})
	case EventChargeCompleted:
		c.chargeCompleted(w, r, ev)
	default:
		c.record("other", "ignored")
		http.Redirect(w, r, c.homeURL, http.StatusFound)
	}
}

func (c *WebhookController) chargeCompleted(w http.ResponseWriter, r *http.Request, ev WebhookEvent) {
	var data webhookData
	_ = json.Unmarshal(ev.Data, &data)

	if !txref.HasPrefix(data.TxRef) {
		c.record(ev.Event, "foreign")
		writeJSON(w, http.StatusOK, WebhookResponse{
			Status:  "failed",
			Message: fmt.Sprintf("The transaction reference %s was not generated by this store", data.TxRef),
		})
		return
	}

	logger := c.logger.With().Str("tx_ref", data.TxRef).Logger()

	_, err := c.reconciler.WebhookVerify(r.Context(), ev.Event, ev.Data, data.TxRef)
	switch {
	case err == nil:
		c.record(ev.Event, "processed")
		writeJSON(w, http.StatusCreated, WebhookResponse{Status: "success", Message: "Order Processed Successfully"})
	case errors.Is(err, domainErrors.ErrAlreadyProcessed):
		c.record(ev.Event, "already_processed")
		writeJSON(w, http.StatusCreated, WebhookResponse{Status: "error", Message: "Order already processed"})
	case errors.Is(err, domainErrors.ErrOrderNotFound):
		c.record(ev.Event, "not_found")
		writeJSON(w, http.StatusNotFound, WebhookResponse{Status: "error", Message: "Order not found"})
	case errors.Is(err, domainErrors.ErrInvalidReference):
		c.record(ev.Event, "foreign")
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "failed", Message: "The transaction reference is malformed"})
	default:
		// A 5xx makes the processor redeliver.
		logger.Error().Err(err).Msg("Webhook reconciliation failed")
		c.record(ev.Event, "error")
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Status: "error", Message: "Unable to process webhook"})
	}
}

func (c *WebhookController) record(event, result string) {
	c.metrics.WebhooksTotal.WithLabelValues(event, result).Inc()
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}
