package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// IngestEvent records one inbound notification. A first insert answers 201,
// a duplicate 200 with the stored identity.
//
//	POST /api/events
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var in domain.EventInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	res, err := h.ingestor.Ingest(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if res.Duplicate {
		httputil.OK(w, res)
		return
	}
	httputil.Created(w, res)
}

type webhookSummary struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// HandleSESWebhook consumes SES notifications delivered by SNS. Events that
// can never be ingested are counted and dropped; any other failure answers
// 500 so SNS redelivers.
//
//	POST /webhooks/ses
func (h *Handlers) HandleSESWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 5*httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}
	env, err := tracking.ParseSNS(body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	switch env.Type {
	case tracking.SNSSubscriptionConfirmation:
		if err := h.confirmSNS(r.Context(), env.SubscribeURL); err != nil {
			logger.Error("sns subscription confirmation failed", "topic", env.TopicArn, "error", err)
			httputil.BadRequest(w, "subscription confirmation failed")
			return
		}
		logger.Info("sns subscription confirmed", "topic", env.TopicArn)
		httputil.OK(w, map[string]string{"status": "confirmed"})
		return
	case tracking.SNSNotification:
	default:
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	inputs, err := tracking.SESEvents(env.Message)
	if err != nil {
		logger.Warn("dropping ses notification", "message_id", env.MessageID, "error", err)
		respondServiceError(w, err)
		return
	}

	var sum webhookSummary
	for _, in := range inputs {
		res, err := h.ingestor.Ingest(r.Context(), in)
		switch {
		case err == nil && res.Duplicate:
			sum.Duplicates++
		case err == nil:
			sum.Accepted++
		case errors.Is(err, domain.ErrUnknownRecipient), errors.Is(err, domain.ErrMalformedEvent):
			logger.Warn("ses event rejected", "campaign_id", in.CampaignID, "email", in.Email, "event_type", in.Type, "error", err)
			sum.Rejected++
		default:
			httputil.InternalError(w, err)
			return
		}
	}
	httputil.OK(w, sum)
}
