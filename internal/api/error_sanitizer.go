package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// errorStatus maps service errors to an HTTP status and machine code.
// Anything unmapped is a 500.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, suppression.ErrOptOut):
		return http.StatusConflict, "opt_out"
	case errors.Is(err, domain.ErrEmptyAudience):
		return http.StatusUnprocessableEntity, "empty_audience"
	case errors.Is(err, domain.ErrUnknownRecipient):
		return http.StatusNotFound, "unknown_recipient"
	case errors.Is(err, domain.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed_event"
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, suppression.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, campaign.ErrValidation),
		errors.Is(err, domain.ErrInvalidAudience),
		errors.Is(err, delivery.ErrInvalidFilter),
		errors.Is(err, suppression.ErrInvalidEmail):
		return http.StatusBadRequest, "validation"
	}
	return http.StatusInternalServerError, "internal"
}

// respondServiceError writes err with its mapped status. 4xx messages are
// about caller input and are passed through; 5xx causes are logged and
// replaced by a generic message.
func respondServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		httputil.InternalError(w, err)
		return
	}
	httputil.Error(w, status, code, err.Error())
}
