package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/sequencer"
)

// StartEngine starts the sequencer loop. The loop outlives the request.
//
//	POST /api/engine/start
func (h *Handlers) StartEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, sequencer.ErrAlreadyRunning) {
			httputil.Conflict(w, "engine already running")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, h.engine.Stats())
}

//	POST /api/engine/stop
func (h *Handlers) StopEngine(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	httputil.OK(w, h.engine.Stats())
}

//	GET /api/engine/stats
func (h *Handlers) GetEngineStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.engine.Stats())
}

//	GET /api/engine/sequence
func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.engine.Sequence(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, seq)
}

// PutSequence replaces the default follow-up sequence. Campaigns already
// mid-sequence pick up the new steps from their next step on.
//
//	PUT /api/engine/sequence
func (h *Handlers) PutSequence(w http.ResponseWriter, r *http.Request) {
	var seq domain.FollowupSequence
	if !httputil.Decode(w, r, &seq) {
		return
	}
	if err := h.engine.ReplaceSequence(r.Context(), &seq); err != nil {
		if errors.Is(err, domain.ErrInvalidSequence) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, seq)
}

// TriggerSweep runs one sweep now and returns its report.
//
//	POST /api/engine/sweep
func (h *Handlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Sweep(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, sequencer.ErrSweepInProgress) {
			httputil.Conflict(w, "a sweep is already in progress")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}
