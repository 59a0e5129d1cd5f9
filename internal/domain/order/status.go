package order

import (
	"fmt"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
)

// Status is the order status as seen by the store.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on-hold"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status the reconciler can drive an order into.
var AllStatuses = []Status{
	StatusPending,
	StatusOnHold,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// Event is a reconciliation outcome that moves an order between statuses.
type Event string

const (
	EventInit             Event = "init"
	EventVerifiedSuccess  Event = "verified_success"
	EventAutoComplete     Event = "auto_complete"
	EventVerifiedMismatch Event = "verified_mismatch"
	EventFailure          Event = "failure"
	EventCancel           Event = "cancel"
	EventTimeout          Event = "timeout"
	EventRequeryError     Event = "requery_error"
)

// transitions is the complete table. A (status, event) pair missing here is
// an impossible transition.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventInit:             StatusPending,
		EventVerifiedSuccess:  StatusProcessing,
		EventVerifiedMismatch: StatusOnHold,
		EventFailure:          StatusFailed,
		EventCancel:           StatusCancelled,
		EventTimeout:          StatusOnHold,
		EventRequeryError:     StatusOnHold,
	},
	StatusOnHold: {
		EventVerifiedSuccess:  StatusProcessing,
		EventVerifiedMismatch: StatusOnHold,
		EventFailure:          StatusFailed,
		EventCancel:           StatusCancelled,
		EventTimeout:          StatusOnHold,
		EventRequeryError:     StatusOnHold,
	},
	StatusProcessing: {
		EventAutoComplete: StatusCompleted,
		EventFailure:      StatusFailed,
		EventCancel:       StatusCancelled,
	},
	StatusCompleted: {
		EventCancel: StatusCancelled,
	},
	// A failed order may be paid on a second attempt in the same session,
	// or restarted with a fresh reference.
	StatusFailed: {
		EventInit:             StatusPending,
		EventVerifiedSuccess:  StatusProcessing,
		EventVerifiedMismatch: StatusOnHold,
		EventFailure:          StatusFailed,
		EventCancel:           StatusCancelled,
	},
	StatusCancelled: {
		EventInit:   StatusPending,
		EventCancel: StatusCancelled,
	},
}

func init() {
	if err := validateTransitions(transitions); err != nil {
		panic(err)
	}
}

func validateTransitions(table map[Status]map[Event]Status) error {
	for _, s := range AllStatuses {
		if _, ok := table[s]; !ok {
			return fmt.Errorf("order: status %q has no transition row", s)
		}
	}
	for from, row := range table {
		if !from.Valid() {
			return fmt.Errorf("order: unknown status %q in transition table", from)
		}
		for ev, to := range row {
			if !to.Valid() {
				return fmt.Errorf("order: %s --%s--> unknown status %q", from, ev, to)
			}
		}
	}
	return nil
}

// Next returns the status reached from `from` on `ev`.
func Next(from Status, ev Event) (Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", errors.NewDomainError(
			"invalid_transition",
			fmt.Sprintf("cannot apply %s to an order in status %s", ev, from),
			errors.ErrInvalidStateTransition,
		)
	}
	return to, nil
}

// CanApply reports whether ev is allowed from s.
func (s Status) CanApply(ev Event) bool {
	_, ok := transitions[s][ev]
	return ok
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends a payment attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsPaid reports whether the processor has already been confirmed as paid.
func (s Status) IsPaid() bool {
	return s == StatusProcessing || s == StatusCompleted
}

// ParseStatus converts a stored status string.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", errors.NewValidationError("status", fmt.Sprintf("unknown order status %q", v))
	}
	return s, nil
}
