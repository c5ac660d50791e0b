package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 25
	maxPageSize     = 500

	// maxBodyBytes bounds action, search and avoid request bodies.
	maxBodyBytes = 64 << 10
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination extracts limit and offset from query params. A limit
// above maxPageSize is capped; other missing, malformed or out of range
// values fall back to the defaults.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: defaultPageSize}
	if n, ok := QueryInt(r, "limit"); ok && n >= 1 {
		p.Limit = min(n, maxPageSize)
	}
	if n, ok := QueryInt(r, "offset"); ok && n >= 0 {
		p.Offset = n
	}
	return p
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CallID extracts the {id} path parameter. Scanner call ids are positive.
func CallID(r *http.Request) (int, error) {
	v := chi.URLParam(r, "id")
	if v == "" {
		return 0, fmt.Errorf("missing call id")
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("call id %q: %w", v, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("call id %d out of range", id)
	}
	return id, nil
}

// DecodeJSON decodes a JSON request body of at most maxBodyBytes into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}
