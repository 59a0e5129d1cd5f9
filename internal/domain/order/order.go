package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Billing holds the customer contact fields used in the initiation payload.
type Billing struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Order is the store's order record. The reconciler reads it and moves its
// status; it never creates or deletes orders.
type Order struct {
	ID                int64
	Total             decimal.Decimal
	Currency          string
	Billing           Billing
	CustomerID        int64
	CustomerIP        string
	CustomerUserAgent string
	PaymentMethod     string
	Status            Status
	TxRef             string
	Notes             []*Note
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Note is an append-only order note. Customer-facing notes are shown to the
// buyer, the rest only to shop staff.
type Note struct {
	ID             uuid.UUID
	OrderID        int64
	Body           string
	CustomerFacing bool
	CreatedAt      time.Time
}

// NewNote creates a note for the order.
func NewNote(orderID int64, body string, customerFacing bool) *Note {
	return &Note{
		ID:             uuid.New(),
		OrderID:        orderID,
		Body:           body,
		CustomerFacing: customerFacing,
		CreatedAt:      time.Now(),
	}
}

// Number is the human-facing order number.
func (o *Order) Number() string {
	return strconv.FormatInt(o.ID, 10)
}

// BillingName joins first and last name.
func (o *Order) BillingName() string {
	return strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName)
}

// Apply moves the order through the transition table and returns the status
// it left. The order is unchanged when the transition is not allowed.
func (o *Order) Apply(ev Event) (Status, error) {
	from := o.Status
	to, err := Next(from, ev)
	if err != nil {
		return from, err
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return from, nil
}

// CustomerNotes returns only the notes the buyer can see.
func (o *Order) CustomerNotes() []*Note {
	var out []*Note
	for _, n := range o.Notes {
		if n.CustomerFacing {
			out = append(out, n)
		}
	}
	return out
}

// AdminNotes returns the staff-only notes.
func (o *Order) AdminNotes() []*Note {
	var out []*Note
	for _, n := range o.Notes {
		if !n.CustomerFacing {
			out = append(out, n)
		}
	}
	return out
}
