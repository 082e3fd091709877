package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
)

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of live browser sessions.
type SessionCounter interface {
	Len() int
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db       DBPinger
	sessions SessionCounter
	version  string
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// database is configured.
func NewHealthHandler(db DBPinger, sessions SessionCounter, version string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		sessions: sessions,
		version:  version,
	}
}

type databaseStatus struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

type healthData struct {
	Status         string         `json:"status"`
	Version        string         `json:"version"`
	Database       databaseStatus `json:"database"`
	ActiveSessions int            `json:"activeSessions"`
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	data := healthData{Status: "healthy", Version: h.version}

	if h.db != nil {
		data.Database.Configured = true
		if err := h.db.Ping(r.Context()); err != nil {
			slog.Warn("health: database ping failed", "error", err, "requestId", requestID)
			data.Status = "degraded"
		} else {
			data.Database.Connected = true
		}
	}
	if h.sessions != nil {
		data.ActiveSessions = h.sessions.Len()
	}

	response.Success(w, http.StatusOK, data, requestID)
}
