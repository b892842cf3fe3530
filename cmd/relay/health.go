package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/wsrelay/internal/connection"
	"github.com/rickgao/wsrelay/internal/router"
	"github.com/rickgao/wsrelay/internal/version"
	"github.com/rickgao/wsrelay/internal/writer"
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps are the components reported on by the health handler.
// db and recorder are nil when recording is disabled.
type healthDeps struct {
	instanceID string
	manager    *connection.Manager
	router     *router.Router
	recorder   *writer.EventWriter
	db         pinger
}

type healthResponse struct {
	Status     string         `json:"status"`
	Instance   string         `json:"instance"`
	Version    version.Info   `json:"version"`
	Components map[string]any `json:"components"`
}

// createHealthHandler creates the HTTP handler for health and stats.
func createHealthHandler(deps healthDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Instance:   deps.instanceID,
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		// Check connection
		st := deps.manager.Stats()
		switch st.State {
		case connection.StateOpen:
			health.Components["connection"] = "open"
		case connection.StateConnecting, connection.StateBackoff:
			health.Status = "degraded"
			health.Components["connection"] = map[string]any{
				"state":   st.State.String(),
				"backoff": st.Backoff.String(),
			}
		default:
			health.Status = "unhealthy"
			health.Components["connection"] = st.State.String()
		}

		// Check database
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("write health response", "error", err)
		}
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		st := deps.manager.Stats()
		stats := map[string]any{
			"connection": map[string]any{
				"state":            st.State.String(),
				"generation":       st.Generation,
				"session":          st.Session,
				"backoff_ms":       st.Backoff.Milliseconds(),
				"opens":            st.Opens,
				"reconnects":       st.Reconnects,
				"frames_received":  st.FramesReceived,
				"decode_fallbacks": st.DecodeFallbacks,
				"sent":             st.Sent,
				"pending_sends":    st.PendingSends,
			},
			"router": deps.router.Stats(),
		}
		if deps.recorder != nil {
			stats["writer"] = deps.recorder.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Warn("write stats response", "error", err)
		}
	})

	return mux
}
