package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/compliance"
)

// ListBlocklist supports ?reason=, ?search=, ?page= and ?limit=.
//
//	GET /api/blocklist
func (h *Handlers) ListBlocklist(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r, 50, 500)
	reason := domain.BlockReason(r.URL.Query().Get("reason"))
	if reason != "" && !reason.Valid() {
		httputil.BadRequest(w, "unknown reason "+string(reason))
		return
	}

	entries, total, err := h.engine.Compliance().List(r.Context(), domain.BlocklistFilter{
		Reason: reason,
		Search: r.URL.Query().Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, newPage(entries, p, total))
}

//	GET /api/blocklist/stats
func (h *Handlers) GetBlocklistStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Compliance().GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

type blockRequest struct {
	Email  string             `json:"email"`
	Reason domain.BlockReason `json:"reason"`
	Detail string             `json:"detail"`
}

// AddToBlocklist lets an operator block an address by hand.
//
//	POST /api/blocklist
func (h *Handlers) AddToBlocklist(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Detail == "" {
		req.Detail = "operator"
	}
	err := h.engine.Compliance().Block(r.Context(), req.Email, req.Reason, req.Detail)
	switch {
	case err == nil:
		httputil.JSON(w, http.StatusCreated, map[string]interface{}{"email": domain.NormalizeEmail(req.Email), "reason": req.Reason})
	case errors.Is(err, compliance.ErrEmailRequired), errors.Is(err, compliance.ErrInvalidReason):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

//	DELETE /api/blocklist/{email}
func (h *Handlers) RemoveFromBlocklist(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		httputil.BadRequest(w, "invalid email")
		return
	}
	err = h.engine.Compliance().Unblock(r.Context(), email)
	switch {
	case err == nil:
		httputil.NoContent(w)
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, "address is not blocked")
	case errors.Is(err, compliance.ErrEmailRequired):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
