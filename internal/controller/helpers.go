package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrOrderAlreadyPaid, http.StatusConflict, "already_paid"},
	{domainErrors.ErrAlreadyProcessed, http.StatusConflict, "already_processed"},
	{domainErrors.ErrMissingTransactionRef, http.StatusConflict, "missing_tx_ref"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrStatusConflict, http.StatusConflict, "conflict"},
	{domainErrors.ErrForeignReference, http.StatusBadRequest, "invalid_reference"},
	{domainErrors.ErrInvalidReference, http.StatusBadRequest, "invalid_reference"},
	{domainErrors.ErrProviderRejected, http.StatusBadGateway, "processor_rejected"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a stable code. Messages from wrapped
// processor errors are replaced by the domain message so remote payloads
// never reach the client.
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var configErr *domainErrors.ConfigurationError
	if errors.As(err, &configErr) {
		resp.Code = "payment_method_unavailable"
		resp.Error = configErr.Message
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	hasDomainErr := errors.As(err, &domainErr)
	if hasDomainErr {
		resp.Error = domainErr.Message
	}

	if domainErrors.IsTransportError(err) {
		resp.Code = "processor_unreachable"
		if !hasDomainErr {
			resp.Error = "payment processor unreachable"
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.err == domainErrors.ErrStatusConflict {
				resp.Error = "order changed concurrently, please retry"
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	if hasDomainErr {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// orderIDParam reads the {id} route parameter.
func orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domainErrors.NewValidationError("id", "must be a positive order id")
	}
	return id, nil
}
