package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// ConnChecker reports whether a long-lived connection is up.
type ConnChecker interface {
	IsConnected() bool
}

// Pinger checks a backing store.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	server    ConnChecker
	mqtt      ConnChecker
	db        Pinger
	version   string
	startTime time.Time
}

// NewHealthHandler builds the health endpoint. mqtt and db may be nil when
// not configured.
func NewHealthHandler(server, mqtt ConnChecker, db Pinger, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		server:    server,
		mqtt:      mqtt,
		db:        db,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Scanner server link: without it nothing plays.
	if h.server != nil && h.server.IsConnected() {
		checks["server"] = "ok"
	} else {
		checks["server"] = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			degrade()
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
