package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockProcessor is an in-memory processor for local runs and tests. It
// keeps every initiated transaction and answers verification from memory.
type MockProcessor struct {
	failureRate float64 // transport failures, 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
	autoSettle  bool

	mu           sync.Mutex
	transactions map[string]*transaction.Record
	requests     []RecordedRequest
	nextID       int64
}

// RecordedRequest is one call seen by the mock.
type RecordedRequest struct {
	Method   string
	Endpoint string
	Payload  []byte
}

type MockProcessorOption func(*MockProcessor)

func WithFailureRate(rate float64) MockProcessorOption {
	return func(p *MockProcessor) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProcessorOption {
	return func(p *MockProcessor) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProcessorOption {
	return func(p *MockProcessor) { p.timeoutRate = rate }
}

// WithAutoSettle marks initiated payments successful for the full amount.
func WithAutoSettle(v bool) MockProcessorOption {
	return func(p *MockProcessor) { p.autoSettle = v }
}

func NewMockProcessor(opts ...MockProcessorOption) *MockProcessor {
	p := &MockProcessor{
		transactions: make(map[string]*transaction.Record),
		nextID:       4975000,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetTransaction stores the record the processor will report for its tx_ref.
func (p *MockProcessor) SetTransaction(rec *transaction.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions[rec.TxRef] = rec
}

// Requests returns a copy of every call made so far.
func (p *MockProcessor) Requests() []RecordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecordedRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *MockProcessor) Request(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, &domainErrors.TransportError{Method: method, Endpoint: pathOf(endpoint), Err: ctx.Err()}
		}
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
	}

	p.mu.Lock()
	p.requests = append(p.requests, RecordedRequest{Method: method, Endpoint: endpoint, Payload: body})
	p.mu.Unlock()

	if rand.Float64() < p.timeoutRate {
		return nil, &domainErrors.TransportError{Method: method, Endpoint: pathOf(endpoint), Err: domainErrors.ErrProviderTimeout}
	}
	if rand.Float64() < p.failureRate {
		return nil, &domainErrors.TransportError{Method: method, Endpoint: pathOf(endpoint), Err: domainErrors.ErrProviderUnavailable}
	}

	switch {
	case method == http.MethodPost && endpoint == EndpointPayments:
		return p.initiate(body)
	case method == http.MethodGet && strings.HasPrefix(endpoint, EndpointVerifyByReference):
		return p.verify(endpoint)
	default:
		return jsonResponse(http.StatusNotFound, map[string]any{"status": "error", "message": "Route not found"}), nil
	}
}

type mockInitiation struct {
	TxRef    string          `json:"tx_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Customer struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer"`
}

func (p *MockProcessor) initiate(body []byte) (*Response, error) {
	var in mockInitiation
	if err := json.Unmarshal(body, &in); err != nil || in.TxRef == "" {
		return jsonResponse(http.StatusBadRequest, map[string]any{"status": "error", "message": "tx_ref is required"}), nil
	}

	p.mu.Lock()
	p.nextID++
	rec := &transaction.Record{
		ID:       p.nextID,
		TxRef:    in.TxRef,
		FlwRef:   "FLW-MOCK-" + uuid.New().String()[:8],
		Amount:   in.Amount,
		Currency: in.Currency,
		Status:   "pending",
		Customer: &transaction.Customer{Email: in.Customer.Email, Name: in.Customer.Name},
	}
	if p.autoSettle {
		rec.Status = transaction.StatusSuccessful
		rec.ChargedAmount = in.Amount
		rec.ProcessorResponse = "Approved. Successful"
		rec.PaymentType = "card"
		rec.Card = &transaction.Card{CardTokens: []transaction.CardToken{{EmbedToken: "flw-t1nf-" + uuid.New().String()[:12]}}}
	}
	if _, exists := p.transactions[in.TxRef]; !exists {
		p.transactions[in.TxRef] = rec
	}
	p.mu.Unlock()

	return jsonResponse(http.StatusOK, map[string]any{
		"status":  StatusSuccess,
		"message": "Hosted Link",
		"data":    map[string]string{"link": "https://checkout.mock.local/pay/" + url.PathEscape(in.TxRef)},
	}), nil
}

func (p *MockProcessor) verify(endpoint string) (*Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]any{"status": "error", "message": "bad request"}), nil
	}
	txRef := u.Query().Get("tx_ref")

	p.mu.Lock()
	rec, ok := p.transactions[txRef]
	p.mu.Unlock()

	if !ok {
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "No transaction was found for this id",
			"data":    nil,
		}), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"status":  StatusSuccess,
		"message": "Transaction fetched successfully",
		"data":    rec,
	}), nil
}

func jsonResponse(status int, v any) *Response {
	body, _ := json.Marshal(v)
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &Response{StatusCode: status, Header: h, Body: body}
}
