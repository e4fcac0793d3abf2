package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
)

// ListCampaigns returns one page of campaigns.
//
//	GET /api/campaigns?status=&sort=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	q := r.URL.Query()
	list, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: domain.CampaignStatus(q.Get("status")),
		Sort:   q.Get("sort"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

// CreateCampaign creates a draft, or a scheduled campaign when
// scheduled_for is set.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.UpdateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

type scheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var in scheduleRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.ScheduledFor.IsZero() {
		httputil.BadRequest(w, "scheduled_for is required")
		return
	}
	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), in.ScheduledFor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// SendCampaign starts a send. The run continues in the background, so a
// successful trigger answers 202 with the campaign in sending.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Accepted(w, c)
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// GetAnalytics returns the engagement report of a campaign.
//
//	GET /api/campaigns/{id}/analytics?recent=
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	recent := 0
	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "recent must be a non-negative integer")
			return
		}
		recent = n
	}
	report, err := h.analytics.Report(r.Context(), chi.URLParam(r, "id"), recent)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ListDeliveries returns per-recipient delivery records with masked emails.
//
//	GET /api/campaigns/{id}/deliveries?outcome=&page=&limit=
func (h *Handlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	p := ParsePagination(r)
	rows, total, err := h.deliveries.List(r.Context(), delivery.ListFilter{
		CampaignID: id,
		Outcome:    r.URL.Query().Get("outcome"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(rows, p, total))
}
