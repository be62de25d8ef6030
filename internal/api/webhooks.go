package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/ingest"
	"github.com/ignite/outreach-engine/internal/service/reply"
)

const maxWebhookBytes = 5 << 20

// signatureHeaders are checked in order; the first non-empty one is used.
var signatureHeaders = []string{"X-Webhook-Signature", "Svix-Signature", "Resend-Signature"}

func signatureHeader(r *http.Request) string {
	for _, h := range signatureHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

// HandleProviderWebhook verifies and applies one provider lifecycle event.
// A 500 makes the provider retry; events that change nothing still get 200.
//
//	POST /webhooks/provider
func (h *Handlers) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}

	if err := ingest.VerifySignature(h.webhookSecret, payload, signatureHeader(r)); err != nil {
		h.log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		httputil.Unauthorized(w, "invalid signature")
		return
	}

	ev, err := ingest.ParseEvent(payload)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := h.engine.HandleEvent(r.Context(), ev)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleInboundReply processes one inbound reply from the provider's
// inbound routing, or from an operator replaying one.
//
//	POST /webhooks/inbound
//	POST /api/engine/process-reply
func (h *Handlers) HandleInboundReply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	var in domain.InboundReply
	if !httputil.Decode(w, r, &in) {
		return
	}

	res, err := h.engine.ProcessReply(r.Context(), in)
	switch {
	case err == nil:
		httputil.OK(w, res)
	case errors.Is(err, reply.ErrNoContent), errors.Is(err, reply.ErrNoSender):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, reply.ErrUnknownAction):
		h.log.Error("classifier contract violation", "campaign_id", res.CampaignID, "error", err)
		httputil.ErrorCode(w, http.StatusBadGateway, "unknown_action", "classifier returned an unknown action")
	default:
		httputil.InternalError(w, err)
	}
}
