package controller

import (
	"net/http"

	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/middleware"
	"github.com/rs/zerolog"
)

// AdminController is the manual reconciliation channel for shop staff.
type AdminController struct {
	reconciler *reconcile.Reconciler
	orders     order.Store
	logger     zerolog.Logger
}

func NewAdminController(reconciler *reconcile.Reconciler, orders order.Store, logger zerolog.Logger) *AdminController {
	return &AdminController{reconciler: reconciler, orders: orders, logger: logger}
}

// GetOrder handles GET /api/v1/admin/orders/{id}
func (c *AdminController) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := c.orders.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// Requery handles POST /api/v1/admin/orders/{id}/requery
func (c *AdminController) Requery(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	staff, _ := middleware.GetStaffID(r.Context())
	c.logger.Info().Int64("order_id", id).Str("staff_id", staff).Msg("Manual re-query requested")

	res, err := c.reconciler.RequeryOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromResult(res))
}

// Timeout handles POST /api/v1/admin/orders/{id}/timeout
func (c *AdminController) Timeout(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req TimeoutRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	staff, _ := middleware.GetStaffID(r.Context())
	c.logger.Info().Int64("order_id", id).Str("staff_id", staff).Msg("Processor timeout recorded")

	res, err := c.reconciler.TimeoutOrder(r.Context(), id, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromResult(res))
}
