// Package txref builds and parses per-attempt transaction references of the
// form <PREFIX>_<orderID>_<unix-seconds|TEST>.
package txref

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
)

const (
	// Prefix marks references issued by this store.
	Prefix = "WOOC"

	testSuffix = "TEST"
	separator  = "_"
)

// Ref is a parsed reference.
type Ref struct {
	OrderID int64
	// Token is the unix timestamp of the attempt, or TEST.
	Token string
}

// IsTest reports whether the reference was issued in test-reference mode.
func (r Ref) IsTest() bool {
	return r.Token == testSuffix
}

func (r Ref) String() string {
	return Prefix + separator + strconv.FormatInt(r.OrderID, 10) + separator + r.Token
}

// New returns a fresh reference for an attempt started at now.
func New(orderID int64, now time.Time) string {
	return Ref{OrderID: orderID, Token: strconv.FormatInt(now.Unix(), 10)}.String()
}

// NewTest returns the fixed test-mode reference for the order.
func NewTest(orderID int64) string {
	return Ref{OrderID: orderID, Token: testSuffix}.String()
}

// HasPrefix reports whether s was issued by this store.
func HasPrefix(s string) bool {
	return strings.HasPrefix(s, Prefix+separator)
}

// Parse splits a reference back into its order id and token.
func Parse(s string) (Ref, error) {
	if !HasPrefix(s) {
		return Ref{}, fmt.Errorf("%q: %w", s, errors.ErrForeignReference)
	}

	parts := strings.SplitN(s, separator, 3)
	if len(parts) != 3 || parts[2] == "" {
		return Ref{}, fmt.Errorf("%q: %w", s, errors.ErrInvalidReference)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, fmt.Errorf("%q: order id: %w", s, errors.ErrInvalidReference)
	}

	return Ref{OrderID: id, Token: parts[2]}, nil
}
