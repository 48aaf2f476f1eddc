// Package api provides the local REST API used by the host shell to observe
// and drive the tunnel session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fosrl/pangolin-client/internal/manager"
	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/util"
	"github.com/fosrl/pangolin-client/internal/version"
)

// API serves the local control surface.
type API struct {
	manager *manager.Manager
	metrics *metrics.Metrics
}

// New creates the API. Metrics may be nil; the /metrics route is then
// omitted.
func New(mgr *manager.Manager, m *metrics.Metrics) *API {
	return &API{manager: mgr, metrics: m}
}

// Handler returns the HTTP handler for the API.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/v1/health", a.handleHealth)
	r.Get("/api/v1/version", a.handleVersion)
	r.Get("/api/v1/status", a.handleStatus)
	r.Post("/api/v1/connect", a.handleConnect)
	r.Post("/api/v1/disconnect", a.handleDisconnect)
	r.Post("/api/v1/switch-org", a.handleSwitchOrg)

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "idle"
	if a.manager.Connected() {
		state = "connected"
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  state,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, version.GetInfo())
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.manager.StatusPoller().Snapshot()
	resp := map[string]any{
		"connected": a.manager.Connected(),
		"backend":   snap.Available,
		"updated":   snap.UpdatedAt.Format(time.RFC3339),
	}
	if snap.Status != nil {
		resp["status"] = snap.Status
	}
	if snap.LastError != "" {
		resp["last_error"] = snap.LastError
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID string `json:"orgId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := a.manager.Connect(ctx, manager.ConnectOptions{OrgID: req.OrgID}); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"result": "connected"})
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Disconnect(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"result": "disconnected"})
}

func (a *API) handleSwitchOrg(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID string `json:"orgId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrgID == "" {
		http.Error(w, "orgId is required", http.StatusBadRequest)
		return
	}
	if err := a.manager.SwitchOrg(r.Context(), req.OrgID); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"result": "switching", "orgId": req.OrgID})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case util.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case isClientError(err):
		status = http.StatusConflict
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isClientError(err error) bool {
	return errors.Is(err, util.ErrNotConnected) || errors.Is(err, util.ErrInvalidConfig)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}
