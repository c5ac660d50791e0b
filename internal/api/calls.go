package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/freescanner-live/internal/database"
	"github.com/snarg/freescanner-live/internal/storage"
)

// CallLogSource is the played-call log. *database.DB implements it.
type CallLogSource interface {
	ListPlayedCalls(ctx context.Context, f database.PlayedCallFilter) ([]database.PlayedCallRow, int, error)
	AudioKey(ctx context.Context, callID int) (string, error)
}

type CallsHandler struct {
	log   CallLogSource
	store storage.CallArchive
}

// NewCallsHandler serves the call log. store may be nil when no archive is
// configured.
func NewCallsHandler(log CallLogSource, store storage.CallArchive) *CallsHandler {
	return &CallsHandler{log: log, store: store}
}

func (h *CallsHandler) Routes(r chi.Router) {
	r.Get("/calls", h.ListCalls)
	r.Get("/calls/{id}/audio", h.GetCallAudio)
}

type callListResponse struct {
	Calls []database.PlayedCallRow `json:"calls"`
	Total int                      `json:"total"`
}

func (h *CallsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	f := database.PlayedCallFilter{
		Action: r.URL.Query().Get("action"),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v, ok := QueryInt(r, "system"); ok {
		f.System = &v
	}
	if v, ok := QueryInt(r, "talkgroup"); ok {
		f.Talkgroup = &v
	}

	rows, total, err := h.log.ListPlayedCalls(r.Context(), f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list played calls")
		WriteError(w, http.StatusInternalServerError, "call log unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, callListResponse{Calls: rows, Total: total})
}

// GetCallAudio serves archived audio from disk, by presigned redirect or
// streamed, depending on where the archive keeps it.
func (h *CallsHandler) GetCallAudio(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusNotFound, "audio archive not configured")
		return
	}
	id, err := CallID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid call id")
		return
	}
	key, err := h.log.AudioKey(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "call not archived")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int("call_id", id).Msg("audio key lookup")
		WriteError(w, http.StatusInternalServerError, "call log unavailable")
		return
	}

	loc, err := h.store.Locate(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrNotArchived):
		WriteError(w, http.StatusNotFound, "audio not found")
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("locate call audio")
		WriteError(w, http.StatusBadGateway, "audio archive unavailable")
	case loc.Path != "":
		http.ServeFile(w, r, loc.Path)
	case loc.URL != "":
		http.Redirect(w, r, loc.URL, http.StatusFound)
	default:
		defer loc.Body.Close()
		w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(key)+`"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		io.Copy(w, loc.Body)
	}
}
