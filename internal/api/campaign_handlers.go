package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/delivery"
)

type createCampaignRequest struct {
	RecipientEmail string `json:"recipient_email"`
	ContactName    string `json:"contact_name"`
	CompanyName    string `json:"company_name"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// CreateCampaign stores a draft. Content comes from the caller; the engine
// never writes copy itself.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Body == "" {
		httputil.BadRequest(w, "subject and body are required")
		return
	}

	c := &domain.Campaign{
		RecipientEmail: req.RecipientEmail,
		ContactName:    req.ContactName,
		CompanyName:    req.CompanyName,
		Subject:        req.Subject,
		Body:           req.Body,
	}
	switch err := h.engine.CreateCampaign(r.Context(), c); {
	case err == nil:
		httputil.JSON(w, http.StatusCreated, c)
	case errors.Is(err, delivery.ErrNoRecipient):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.Conflict(w, "recipient already has an active campaign")
	default:
		httputil.InternalError(w, err)
	}
}

//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Campaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// SendCampaign sends the initial message of a draft. A blocked recipient is
// a 200 with blocked=true.
//
//	POST /api/campaigns/{id}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.SendInitial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, out)
}

//	POST /api/campaigns/{id}/meeting
func (h *Handlers) MarkMeetingScheduled(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.MarkMeetingScheduled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) campaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, delivery.ErrNotDraft),
		errors.Is(err, delivery.ErrSendInProgress),
		errors.Is(err, engine.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
