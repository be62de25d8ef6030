package api

import (
	"net/http"
	"strconv"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// GetFunnel computes the funnel over ?days= (default 30, max 365).
//
//	GET /api/analytics/funnel
func (h *Handlers) GetFunnel(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			httputil.BadRequest(w, "days must be an integer between 1 and 365")
			return
		}
		days = n
	}
	funnel, err := h.engine.Analytics().ComputeFunnel(r.Context(), days)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, funnel)
}
