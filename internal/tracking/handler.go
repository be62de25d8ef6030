// Package tracking serves the open pixel, the click redirect and the
// unsubscribe endpoint, and optionally moves hits through SQS.
package tracking

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// Unsubscriber blocks a recipient and halts their campaign.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, email, source string) error
}

// Verifier checks the signatures carried by tracking URLs.
type Verifier interface {
	VerifyOpen(campaignID, sig string) bool
	VerifyClick(campaignID, target, sig string) bool
	VerifyUnsubscribe(email, sig string) bool
}

type Handler struct {
	sink   Sink
	unsub  Unsubscriber
	verify Verifier
	now    func() time.Time
	log    *logger.Entry
}

func NewHandler(sink Sink, unsub Unsubscriber, verify Verifier) *Handler {
	return &Handler{
		sink:   sink,
		unsub:  unsub,
		verify: verify,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.With("component", "tracking_handler"),
	}
}

// Mount registers the public tracking routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/t/o/{pixel}", h.HandleOpen)
	r.Get("/t/c/{id}", h.HandleClick)
	r.Get("/unsubscribe", h.HandleUnsubscribe)
	r.Post("/unsubscribe", h.HandleUnsubscribe)
}

// HandleOpen always answers with the pixel, whatever happened to the hit.
// An unsigned or forged pixel is not recorded.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "pixel"), ".gif")
	if id != "" && !h.verify.VerifyOpen(id, r.URL.Query().Get("s")) {
		h.log.Warn("open signature rejected", "campaign_id", id)
		id = ""
	}
	if id != "" {
		evt := TrackingEvent{
			EventType:  EventOpen,
			CampaignID: id,
			IPAddress:  realIP(r),
			UserAgent:  r.UserAgent(),
			Timestamp:  h.now(),
		}
		if err := h.sink.Record(r.Context(), evt); err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.log.Error("record open failed", "campaign_id", id, "error", err)
		}
	}
	servePixel(w)
}

// HandleClick records the click and redirects. A missing or non-http target
// is a 400 and a bad signature is a 403. Neither is recorded.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	target, err := tracking.DecodeTarget(q.Get("u"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !h.verify.VerifyClick(id, q.Get("u"), q.Get("s")) {
		h.log.Warn("click signature rejected", "campaign_id", id)
		httputil.Forbidden(w, "invalid signature")
		return
	}

	evt := TrackingEvent{
		EventType:  EventClick,
		CampaignID: id,
		LinkURL:    target,
		IPAddress:  realIP(r),
		UserAgent:  r.UserAgent(),
		Timestamp:  h.now(),
	}
	if err := h.sink.Record(r.Context(), evt); err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.log.Error("record click failed", "campaign_id", id, "error", err)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleUnsubscribe serves the link in every footer (GET) and the one-click
// List-Unsubscribe-Post (POST). Both are idempotent and both require the
// signature minted with the link.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	email := domain.NormalizeEmail(r.URL.Query().Get("email"))
	sig := r.URL.Query().Get("s")
	if email == "" && r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			email = domain.NormalizeEmail(r.PostForm.Get("email"))
			sig = r.PostForm.Get("s")
		}
	}
	if email == "" || !strings.Contains(email, "@") {
		httputil.BadRequest(w, "email is required")
		return
	}
	if !h.verify.VerifyUnsubscribe(email, sig) {
		h.log.Warn("unsubscribe signature rejected", "email", email)
		httputil.Forbidden(w, "invalid signature")
		return
	}

	source := "link"
	if r.Method == http.MethodPost {
		source = "one_click"
	}
	if err := h.unsub.Unsubscribe(r.Context(), email, source); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.log.Info("unsubscribed", "email", email, "source", source)

	if r.Method == http.MethodPost {
		httputil.OK(w, map[string]interface{}{"unsubscribed": true})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>You have been unsubscribed</h1>
		<p>` + html.EscapeString(email) + ` will no longer receive emails from us.</p>
	</body></html>`))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(tracking.Pixel)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
