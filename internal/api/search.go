package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/search"
)

// SearchSource is the archived-call search state.
type SearchSource interface {
	Snapshot() search.Snapshot
	Search(opts scanner.SearchOptions)
	Play(id int)
}

type SearchHandler struct {
	search  SearchSource
	display DisplaySource
	exec    Executor
}

func NewSearchHandler(s SearchSource, d DisplaySource, exec Executor) *SearchHandler {
	return &SearchHandler{search: s, display: d, exec: exec}
}

// Routes registers search and playback routes on the given router.
func (h *SearchHandler) Routes(r chi.Router) {
	r.Get("/search", h.GetSearch)
	r.Post("/search", h.Search)
	r.Post("/playback/{id}", h.Playback)
}

func (h *SearchHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.search.Snapshot())
}

// Search sends a search to the scanner server. Results arrive later and
// are read back with GET /search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var opts scanner.SearchOptions
	if err := DecodeJSON(r, &opts); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid search options", err.Error())
		return
	}
	if !h.authorized(w) {
		return
	}
	if err := h.exec.Do(r.Context(), func() { h.search.Search(opts) }); err != nil {
		writeLoopError(w, err)
		return
	}
	metrics.ActionsTotal.WithLabelValues("api:search").Inc()
	WriteJSON(w, http.StatusAccepted, h.search.Snapshot())
}

// Playback switches to playback mode and fetches an archived call.
func (h *SearchHandler) Playback(w http.ResponseWriter, r *http.Request) {
	id, err := CallID(r)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid call id", err.Error())
		return
	}
	if !h.authorized(w) {
		return
	}
	if err := h.exec.Do(r.Context(), func() { h.search.Play(id) }); err != nil {
		writeLoopError(w, err)
		return
	}
	metrics.ActionsTotal.WithLabelValues("api:playback").Inc()
	WriteJSON(w, http.StatusAccepted, h.display.Snapshot())
}

// authorized rejects requests while the scanner server still wants an
// access code.
func (h *SearchHandler) authorized(w http.ResponseWriter) bool {
	if h.display.Snapshot().Auth {
		WriteError(w, http.StatusForbidden, "scanner access code required")
		return false
	}
	return true
}
