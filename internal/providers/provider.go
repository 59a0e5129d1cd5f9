package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
)

const (
	EndpointPayments          = "/v3/payments"
	EndpointVerifyByReference = "/v3/transactions/verify_by_reference"

	// StatusSuccess is the envelope status of a call the processor accepted.
	StatusSuccess = "success"
)

// Response is a raw processor reply. Any HTTP status below 500 is a
// response; the caller decides what it means.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client executes calls against the processor API. Network failures,
// timeouts and 5xx replies come back as *errors.TransportError.
type Client interface {
	Request(ctx context.Context, method, endpoint string, payload any) (*Response, error)
}

// VerifyEndpoint is the verification path for one reference.
func VerifyEndpoint(txRef string) string {
	return EndpointVerifyByReference + "?tx_ref=" + url.QueryEscape(txRef)
}

// Envelope is the common {status, message, data} wrapper.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitiationData is the data of a successful POST /v3/payments.
type InitiationData struct {
	Link string `json:"link"`
}

// DecodeEnvelope parses a response body into its envelope.
func (r *Response) DecodeEnvelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return nil, fmt.Errorf("decode processor response (HTTP %d): %w", r.StatusCode, err)
	}
	return &env, nil
}

// Record decodes the envelope's data as a transaction record.
func (e *Envelope) Record() (*transaction.Record, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, fmt.Errorf("processor response has no data")
	}
	var rec transaction.Record
	if err := json.Unmarshal(e.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode transaction record: %w", err)
	}
	return &rec, nil
}

// Link decodes the envelope's data as an initiation result.
func (e *Envelope) Link() (string, error) {
	var d InitiationData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return "", fmt.Errorf("decode initiation data: %w", err)
	}
	if d.Link == "" {
		return "", fmt.Errorf("processor returned no checkout link")
	}
	return d.Link, nil
}
