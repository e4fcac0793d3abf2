package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	list, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Reason: domain.SuppressionReason(r.URL.Query().Get("reason")),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

type suppressRequest struct {
	Email string `json:"email"`
}

// AddSuppression suppresses an address manually.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var in suppressRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	if err := h.suppressions.Suppress(r.Context(), in.Email, domain.ReasonManual, ""); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"email": domain.CanonicalEmail(in.Email), "reason": string(domain.ReasonManual)})
}

func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "email")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}
