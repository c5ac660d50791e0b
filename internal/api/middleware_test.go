package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardOrigin = "http://scanner.local:3000"

// actionRouter mounts a stand-in action route behind the given middleware,
// recording which action reached it.
func actionRouter(mw func(http.Handler) http.Handler, reached *[]string) http.Handler {
	r := chi.NewRouter()
	r.Use(mw)
	r.HandleFunc("/api/v1/actions/{action}", func(w http.ResponseWriter, r *http.Request) {
		*reached = append(*reached, chi.URLParam(r, "action"))
		WriteJSON(w, http.StatusOK, map[string]string{"action": chi.URLParam(r, "action")})
	})
	r.Get("/api/v1/display/stream", func(w http.ResponseWriter, r *http.Request) {
		*reached = append(*reached, "stream")
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestRequestID(t *testing.T) {
	var reached []string
	h := RequestID(actionRouter(func(next http.Handler) http.Handler { return next }, &reached))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/actions/skip", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 16, "generated ids are 8 random bytes in hex")
	first := rec.Header().Get("X-Request-ID")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/actions/skip", nil))
	assert.NotEqual(t, first, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/actions/pause", nil)
	req.Header.Set("X-Request-ID", "mqtt-bridge-7")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "mqtt-bridge-7", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"skip", "skip", "pause"}, reached)
}

func TestCORSWithOrigins(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		wantStatus  int
		wantAllow   string
		wantReached bool
	}{
		{name: "open_api_action", method: "POST", origin: dashboardOrigin, wantStatus: http.StatusOK, wantAllow: "*", wantReached: true},
		{name: "open_api_preflight", method: "OPTIONS", origin: dashboardOrigin, wantStatus: http.StatusNoContent, wantAllow: "*"},
		{name: "listed_dashboard", origins: []string{dashboardOrigin}, method: "POST", origin: dashboardOrigin, wantStatus: http.StatusOK, wantAllow: dashboardOrigin, wantReached: true},
		{name: "listed_with_spaces", origins: []string{" " + dashboardOrigin + " "}, method: "OPTIONS", origin: dashboardOrigin, wantStatus: http.StatusNoContent, wantAllow: dashboardOrigin},
		{name: "unlisted_action_still_served", origins: []string{dashboardOrigin}, method: "POST", origin: "http://elsewhere.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "unlisted_preflight_refused", origins: []string{dashboardOrigin}, method: "OPTIONS", origin: "http://elsewhere.example", wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached []string
			h := actionRouter(CORSWithOrigins(tt.origins), &reached)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/api/v1/actions/pause", nil)
			req.Header.Set("Origin", tt.origin)
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantReached, len(reached) == 1)
			if tt.wantAllow != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID", "display stream reconnects send it")
			}
			if tt.wantAllow == dashboardOrigin {
				assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
	}{
		{name: "no_token_configured", path: "/api/v1/actions/replay", want: http.StatusOK},
		{name: "header", token: "tok", path: "/api/v1/actions/replay", header: "Bearer tok", want: http.StatusOK},
		{name: "wrong_header", token: "tok", path: "/api/v1/actions/replay", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "basic_scheme", token: "tok", path: "/api/v1/actions/replay", header: "Basic dG9r", want: http.StatusUnauthorized},
		{name: "missing", token: "tok", path: "/api/v1/actions/replay", want: http.StatusUnauthorized},
		{name: "stream_query_token", token: "tok", path: "/api/v1/display/stream?token=tok", want: http.StatusOK},
		{name: "stream_wrong_query_token", token: "tok", path: "/api/v1/display/stream?token=nope", want: http.StatusUnauthorized},
		{name: "header_wins_over_query", token: "tok", path: "/api/v1/display/stream?token=tok", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached []string
			h := actionRouter(BearerAuth(tt.token), &reached)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Empty(t, reached)
				assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestRecovererOnActionPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.display.panicOn = "replay"

	rec := h.do("POST", "/api/v1/actions/replay", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])

	rec = h.do("POST", "/api/v1/actions/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code, "server keeps serving after a panic")
}
