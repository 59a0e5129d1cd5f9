package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout-reconciler/internal/webhook"
	"github.com/rs/zerolog/log"
)

const maxWebhookBodySize = 1 << 20

// WebhookSignature rejects webhook calls that fail the gate before the body
// reaches the handler. A call without any signature is treated as a stray
// browser hit and sent to homeURL; a wrong signature gets a 401.
func WebhookSignature(gate *webhook.Gate, homeURL string, m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
			if err != nil {
				writeWebhookError(w, http.StatusBadRequest, "Unable to read request body")
				return
			}
			if len(body) > maxWebhookBodySize {
				writeWebhookError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := gate.Verify(r.Header, body); err != nil {
				if errors.Is(err, webhook.ErrSignatureMissing) {
					m.WebhooksTotal.WithLabelValues("unknown", "unsigned").Inc()
					http.Redirect(w, r, homeURL, http.StatusFound)
					return
				}
				log.Warn().Str("remote_addr", r.RemoteAddr).Str("mode", string(gate.Mode())).Msg("webhook signature mismatch")
				m.WebhooksTotal.WithLabelValues("unknown", "unauthenticated").Inc()
				writeWebhookError(w, http.StatusUnauthorized, "Access Denied Hash does not match")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeWebhookError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": msg,
	})
}
