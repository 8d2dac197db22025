package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// handler serves the console pages and JSON API. Runner actions use the
// server's base context, not the request context: a poll loop must
// outlive the HTTP request that started it.
type handler struct {
	baseCtx context.Context
	runner  *runner.Runner
	hub     *Hub
	clients *clientCache
}

func newHandler(baseCtx context.Context, run *runner.Runner, hub *Hub, clients *clientCache) http.Handler {
	h := &handler{baseCtx: baseCtx, runner: run, hub: hub, clients: clients}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.serveIndex)
	mux.HandleFunc("GET /api/state", h.serveState)
	mux.HandleFunc("GET /api/clients", h.serveClients)
	mux.HandleFunc("POST /api/run", h.serveRun)
	mux.HandleFunc("POST /api/stop", h.serveStop)
	mux.HandleFunc("POST /api/join", h.serveJoin)
	mux.HandleFunc("POST /api/dismiss", h.serveDismiss)
	mux.HandleFunc("GET /ws", h.serveWS)
	return mux
}

// serveIndex writes the console shell. Deep-link query parameters attach
// to an in-flight run before the page renders; the attach is one-shot, so
// reloading an already-attached link is harmless.
func (h *handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	if params := runner.ParseQuery(r.URL.Query()); params.HasCorrelation() {
		h.runner.AttachLink(h.baseCtx, params)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (h *handler) serveState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.runner.State()))
}

func (h *handler) serveClients(w http.ResponseWriter, _ *http.Request) {
	clients, refreshed := h.clients.snapshot()
	payload := map[string]any{"clients": clients}
	if !refreshed.IsZero() {
		payload["refreshedAt"] = refreshed.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, payload)
}

type runRequest struct {
	ClientID            string `json:"clientId"`
	EntityType          string `json:"entityType"`
	TargetPlatform      string `json:"targetPlatform"`
	SourceOfTruth       string `json:"sourceOfTruth"`
	EnqueueProvisioning bool   `json:"enqueueProvisioning"`
	IncludeDefaults     bool   `json:"includeDefaults"`
}

func (h *handler) serveRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.runner.Run(h.baseCtx, req.ClientID, runner.RunConfig{
		EntityType:          req.EntityType,
		TargetPlatform:      req.TargetPlatform,
		SourceOfTruth:       req.SourceOfTruth,
		EnqueueProvisioning: req.EnqueueProvisioning,
		IncludeDefaults:     req.IncludeDefaults,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(h.runner.State()))
}

func (h *handler) serveStop(w http.ResponseWriter, _ *http.Request) {
	if err := h.runner.Stop(h.baseCtx); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(h.runner.State()))
}

func (h *handler) serveJoin(w http.ResponseWriter, _ *http.Request) {
	if err := h.runner.Join(h.baseCtx); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(h.runner.State()))
}

func (h *handler) serveDismiss(w http.ResponseWriter, _ *http.Request) {
	h.runner.Dismiss()
	writeJSON(w, http.StatusOK, viewOf(h.runner.State()))
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	view := viewOf(h.runner.State())
	h.hub.Handle(w, r, envelope{Type: "state", State: &view})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
