package testutil

import (
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/transaction"
	"github.com/cassiomorais/checkout-reconciler/internal/providers"
	"github.com/shopspring/decimal"
)

// TestTxRef is a reference for order 482 used across tests.
const TestTxRef = "WOOC_482_1710000000"

func NewTestOrder(id int64, total, currency string) *order.Order {
	now := time.Now()
	return &order.Order{
		ID:       id,
		Total:    decimal.RequireFromString(total),
		Currency: currency,
		Billing: order.Billing{
			Email:     "ada@example.com",
			Phone:     "+2348012345678",
			FirstName: "Ada",
			LastName:  "Obi",
		},
		CustomerID:        77,
		CustomerIP:        "102.89.1.10",
		CustomerUserAgent: "Mozilla/5.0",
		PaymentMethod:     "flutterwave",
		Status:            order.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewPendingOrder482 is order #482, 5000.00 NGN, awaiting payment.
func NewPendingOrder482() *order.Order {
	o := NewTestOrder(482, "5000.00", "NGN")
	o.TxRef = TestTxRef
	return o
}

func NewOrderWithStatus(status order.Status) *order.Order {
	o := NewPendingOrder482()
	o.Status = status
	return o
}

// SuccessfulRecord is a settled card payment with a reusable token.
func SuccessfulRecord(txRef, amount, currency string) *transaction.Record {
	amt := decimal.RequireFromString(amount)
	return &transaction.Record{
		ID:                4975001,
		TxRef:             txRef,
		FlwRef:            "FLW-MOCK-8f2c1a9b",
		Amount:            amt,
		ChargedAmount:     amt,
		Currency:          currency,
		Status:            transaction.StatusSuccessful,
		ProcessorResponse: "Approved. Successful",
		PaymentType:       "card",
		Card: &transaction.Card{
			First6Digits: "553188",
			Last4Digits:  "2950",
			Type:         "MASTERCARD",
			CardTokens:   []transaction.CardToken{{EmbedToken: "flw-t1nf-5b0f12ad"}},
		},
	}
}

func FailedRecord(txRef, reason string) *transaction.Record {
	return &transaction.Record{
		ID:                4975002,
		TxRef:             txRef,
		Status:            "failed",
		Currency:          "NGN",
		Amount:            decimal.NewFromInt(5000),
		ProcessorResponse: reason,
	}
}

// NewFakeProcessor returns an in-memory processor preloaded with records.
func NewFakeProcessor(records ...*transaction.Record) *providers.MockProcessor {
	p := providers.NewMockProcessor()
	for _, rec := range records {
		p.SetTransaction(rec)
	}
	return p
}
