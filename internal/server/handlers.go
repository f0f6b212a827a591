package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshp123/kumocloud/internal/coordinator"
	"github.com/joshp123/kumocloud/internal/kumo"
)

// Controller is the slice of the coordinator the handlers need.
type Controller interface {
	Snapshot() *coordinator.Snapshot
	RefreshDevice(ctx context.Context, serial string) error
	SendCommand(ctx context.Context, serial string, commands map[string]any) error
	ClearCache(serial string)
	ClearAllCaches()
	CachedCommandCount() int
}

// Diagnosable reports the client's redacted auth state.
type Diagnosable interface {
	Diagnostics() kumo.Diagnostics
}

// NewMux wires all admin routes.
func NewMux(ctrl Controller, diag Diagnosable, registry *prometheus.Registry, logger zerolog.Logger) *http.ServeMux {
	log := logger.With().Str("component", "http").Logger()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", HealthHandler)
	mux.Handle("GET /metrics", MetricsHandler(registry))

	mux.HandleFunc("GET /diagnostics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, diagnosticsPayload(ctrl, diag))
	})

	mux.HandleFunc("POST /devices/{serial}/refresh", func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serial")
		if err := ctrl.RefreshDevice(r.Context(), serial); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("manual refresh failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	})

	mux.HandleFunc("POST /devices/{serial}/commands", func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serial")
		var commands map[string]any
		if err := json.NewDecoder(r.Body).Decode(&commands); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := ctrl.SendCommand(r.Context(), serial, commands); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("command send failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	})

	mux.HandleFunc("POST /cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if serial := r.URL.Query().Get("serial"); serial != "" {
			ctrl.ClearCache(serial)
		} else {
			ctrl.ClearAllCaches()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	})

	return mux
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func diagnosticsPayload(ctrl Controller, diag Diagnosable) map[string]any {
	payload := map[string]any{
		"client":          diag.Diagnostics(),
		"cached_commands": ctrl.CachedCommandCount(),
	}
	if snap := ctrl.Snapshot(); snap != nil {
		payload["snapshot"] = map[string]any{
			"taken":   snap.Taken,
			"zones":   len(snap.Zones),
			"devices": len(snap.Devices),
		}
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
