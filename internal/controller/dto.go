package controller

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
)

// WebhookEvent is the processor's notification envelope. Data is kept raw
// and handed to the reconciler untouched.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type webhookData struct {
	TxRef string `json:"tx_ref"`
}

// WebhookResponse is the body answered to the processor.
type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TimeoutRequest optionally carries the last payload seen from the processor.
type TimeoutRequest struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// ReconcileResponse is the outcome of a manual re-query or timeout.
type ReconcileResponse struct {
	OrderID int64            `json:"order_id"`
	Status  string           `json:"status"`
	Notice  reconcile.Notice `json:"notice"`
}

// OrderResponse is the admin view of an order.
type OrderResponse struct {
	ID        int64          `json:"id"`
	Number    string         `json:"number"`
	Status    string         `json:"status"`
	Total     string         `json:"total"`
	Currency  string         `json:"currency"`
	TxRef     string         `json:"tx_ref,omitempty"`
	Notes     []NoteResponse `json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type NoteResponse struct {
	Body           string    `json:"body"`
	CustomerFacing bool      `json:"customer_facing"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func fromResult(res *reconcile.Result) *ReconcileResponse {
	return &ReconcileResponse{
		OrderID: res.OrderID,
		Status:  string(res.Status),
		Notice:  res.Notice,
	}
}

// FromOrder converts an order and its notes to the admin response.
func FromOrder(o *order.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:        o.ID,
		Number:    o.Number(),
		Status:    string(o.Status),
		Total:     o.Total.StringFixed(2),
		Currency:  o.Currency,
		TxRef:     o.TxRef,
		Notes:     make([]NoteResponse, 0, len(o.Notes)),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, n := range o.Notes {
		resp.Notes = append(resp.Notes, NoteResponse{
			Body:           n.Body,
			CustomerFacing: n.CustomerFacing,
			CreatedAt:      n.CreatedAt,
		})
	}
	return resp
}
