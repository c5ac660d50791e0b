package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/freescanner-live/internal/display"
	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/runloop"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/selection"
)

// DisplaySource is the live feed display.
type DisplaySource interface {
	Snapshot() display.Snapshot
	Subscribe(f func(display.Snapshot)) (cancel func())
	Perform(action string, args json.RawMessage) error
}

// SelectionSource is the select panel state.
type SelectionSource interface {
	Snapshot() selection.Snapshot
	Avoid(opts scanner.AvoidOptions)
	Toggle(cat scanner.Category)
}

// Executor runs f on the run loop and waits for it.
type Executor interface {
	Do(ctx context.Context, f func()) error
}

type LiveHandler struct {
	display   DisplaySource
	selection SelectionSource
	exec      Executor
	keepalive time.Duration
}

func NewLiveHandler(d DisplaySource, s SelectionSource, exec Executor) *LiveHandler {
	return &LiveHandler{display: d, selection: s, exec: exec, keepalive: 15 * time.Second}
}

// Routes registers live feed routes on the given router.
func (h *LiveHandler) Routes(r chi.Router) {
	r.Get("/display", h.GetDisplay)
	r.Get("/display/stream", h.StreamDisplay)
	r.Post("/actions/{action}", h.PerformAction)
	r.Get("/selection", h.GetSelection)
	r.Post("/selection/avoid", h.SelectionAvoid)
	r.Post("/selection/toggle", h.SelectionToggle)
}

func (h *LiveHandler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.display.Snapshot())
}

type selectionResponse struct {
	selection.Snapshot
	Visible []scanner.Category `json:"visible"`
}

func (h *LiveHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	snap := h.selection.Snapshot()
	WriteJSON(w, http.StatusOK, selectionResponse{Snapshot: snap, Visible: snap.Visible()})
}

// PerformAction runs a named display action on the run loop and answers
// with the display as it stands afterwards.
func (h *LiveHandler) PerformAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	var args json.RawMessage
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		args = body
	}

	var perr error
	if err := h.exec.Do(r.Context(), func() { perr = h.display.Perform(action, args) }); err != nil {
		writeLoopError(w, err)
		return
	}
	switch {
	case errors.Is(perr, display.ErrUnknownAction):
		WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	case perr != nil:
		WriteErrorDetail(w, http.StatusBadRequest, "invalid action options", perr.Error())
		return
	}
	metrics.ActionsTotal.WithLabelValues("api:" + action).Inc()
	WriteJSON(w, http.StatusOK, h.display.Snapshot())
}

func (h *LiveHandler) SelectionAvoid(w http.ResponseWriter, r *http.Request) {
	var opts scanner.AvoidOptions
	if err := DecodeJSON(r, &opts); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid avoid options", err.Error())
		return
	}
	if err := h.exec.Do(r.Context(), func() { h.selection.Avoid(opts) }); err != nil {
		writeLoopError(w, err)
		return
	}
	h.GetSelection(w, r)
}

func (h *LiveHandler) SelectionToggle(w http.ResponseWriter, r *http.Request) {
	var cat scanner.Category
	if err := DecodeJSON(r, &cat); err != nil || cat.Label == "" {
		WriteError(w, http.StatusBadRequest, "category label and type required")
		return
	}
	if err := h.exec.Do(r.Context(), func() { h.selection.Toggle(cat) }); err != nil {
		writeLoopError(w, err)
		return
	}
	h.GetSelection(w, r)
}

func writeLoopError(w http.ResponseWriter, err error) {
	if errors.Is(err, runloop.ErrStopped) {
		WriteError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	WriteErrorDetail(w, http.StatusGatewayTimeout, "action not completed", err.Error())
}

// StreamDisplay opens an SSE connection and pushes every display snapshot.
// Slow clients skip intermediate snapshots and always get the latest.
func (h *LiveHandler) StreamDisplay(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var latest atomic.Pointer[display.Snapshot]
	notify := make(chan struct{}, 1)
	cancel := h.display.Subscribe(func(s display.Snapshot) {
		latest.Store(&s)
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer cancel()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("SSE client connected")

	var seq int64
	write := func(s display.Snapshot) bool {
		data, err := json.Marshal(s)
		if err != nil {
			log.Error().Err(err).Msg("encode display snapshot")
			return true
		}
		seq++
		if _, err := fmt.Fprintf(w, "id: %d\nevent: display\ndata: %s\n\n", seq, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write(h.display.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case <-notify:
			if s := latest.Load(); s != nil && !write(*s) {
				return
			}
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
