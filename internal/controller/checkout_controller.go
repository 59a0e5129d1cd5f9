package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cassiomorais/checkout-reconciler/internal/application/checkout"
	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/middleware"
)

// CheckoutController starts payment attempts.
type CheckoutController struct {
	initiate *checkout.InitiateUseCase
	orders   order.Store
}

func NewCheckoutController(initiate *checkout.InitiateUseCase, orders order.Store) *CheckoutController {
	return &CheckoutController{initiate: initiate, orders: orders}
}

// Initiate handles POST /api/v1/orders/{id}/checkout
func (c *CheckoutController) Initiate(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := c.authorize(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.initiate.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// authorize lets shop managers through and limits customers to their own
// orders. Someone else's order is reported as not found.
func (c *CheckoutController) authorize(ctx context.Context, orderID int64) error {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	if claims.Role == middleware.RoleAdmin || claims.OrderID == orderID {
		return nil
	}

	o, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.CustomerID != 0 && claims.Subject == strconv.FormatInt(o.CustomerID, 10) {
		return nil
	}
	return domainErrors.ErrOrderNotFound
}
