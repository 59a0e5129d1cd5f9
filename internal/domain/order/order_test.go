package order_test

import (
	"testing"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(status order.Status) *order.Order {
	return &order.Order{
		ID:       482,
		Total:    decimal.RequireFromString("5000.00"),
		Currency: "NGN",
		Billing: order.Billing{
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Obi",
		},
		Status: status,
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		from order.Status
		ev   order.Event
		want order.Status
	}{
		{"init keeps pending", order.StatusPending, order.EventInit, order.StatusPending},
		{"verified success from pending", order.StatusPending, order.EventVerifiedSuccess, order.StatusProcessing},
		{"verified success from on-hold", order.StatusOnHold, order.EventVerifiedSuccess, order.StatusProcessing},
		{"auto complete", order.StatusProcessing, order.EventAutoComplete, order.StatusCompleted},
		{"mismatch holds", order.StatusPending, order.EventVerifiedMismatch, order.StatusOnHold},
		{"failure from pending", order.StatusPending, order.EventFailure, order.StatusFailed},
		{"cancel after completion", order.StatusCompleted, order.EventCancel, order.StatusCancelled},
		{"cancel from processing", order.StatusProcessing, order.EventCancel, order.StatusCancelled},
		{"timeout holds", order.StatusPending, order.EventTimeout, order.StatusOnHold},
		{"requery error is sticky", order.StatusOnHold, order.EventRequeryError, order.StatusOnHold},
		{"failed restarts", order.StatusFailed, order.EventInit, order.StatusPending},
		{"cancelled restarts", order.StatusCancelled, order.EventInit, order.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := order.Next(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_ImpossibleTransitions(t *testing.T) {
	tests := []struct {
		from order.Status
		ev   order.Event
	}{
		{order.StatusCompleted, order.EventVerifiedSuccess},
		{order.StatusCompleted, order.EventFailure},
		{order.StatusCompleted, order.EventInit},
		{order.StatusProcessing, order.EventVerifiedMismatch},
		{order.StatusProcessing, order.EventTimeout},
		{order.StatusPending, order.EventAutoComplete},
		{order.StatusCancelled, order.EventVerifiedSuccess},
		{order.StatusOnHold, order.EventInit},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			_, err := order.Next(tt.from, tt.ev)
			assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
			assert.False(t, tt.from.CanApply(tt.ev))
		})
	}
}

func TestEveryStatusHasARow(t *testing.T) {
	for _, s := range order.AllStatuses {
		_, err := order.Next(s, order.EventCancel)
		assert.NoError(t, err, "status %s should accept a cancel signal", s)
	}
}

func TestOrder_Apply(t *testing.T) {
	o := newOrder(order.StatusPending)

	from, err := o.Apply(order.EventVerifiedSuccess)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, from)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.True(t, o.Status.IsPaid())

	_, err = o.Apply(order.EventVerifiedMismatch)
	assert.Error(t, err)
	assert.Equal(t, order.StatusProcessing, o.Status)
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, order.StatusCompleted.IsTerminal())
	assert.True(t, order.StatusFailed.IsTerminal())
	assert.True(t, order.StatusCancelled.IsTerminal())
	assert.False(t, order.StatusOnHold.IsTerminal())
	assert.False(t, order.StatusPending.IsPaid())
	assert.False(t, order.Status("refunded").Valid())
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("on-hold")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOnHold, s)

	_, err = order.ParseStatus("draft")
	var vErr *errors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestOrder_NotesSplit(t *testing.T) {
	o := newOrder(order.StatusOnHold)
	o.Notes = []*order.Note{
		order.NewNote(o.ID, "Payment received but not verified", true),
		order.NewNote(o.ID, "Amount mismatch", false),
	}

	assert.Len(t, o.CustomerNotes(), 1)
	assert.Len(t, o.AdminNotes(), 1)
	assert.Equal(t, "Ada Obi", o.BillingName())
	assert.Equal(t, "482", o.Number())
}
