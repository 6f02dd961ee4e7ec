package hub

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patternkit/patternkit/pkg/constants"
)

// Router returns the hub's HTTP surface: the websocket endpoint, the
// project catalog API, health and, when configured, metrics.
func (h *Hub) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	router.Handle(h.opts.WSPath, h.opts.Auth.middleware(http.HandlerFunc(h.serveWS)))

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.opts.Auth.middleware)
	api.HandleFunc("/projects", h.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", h.handleGetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", h.handleDeleteProject).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/snapshot", h.handleGetSnapshot).Methods(http.MethodGet)

	if h.opts.MetricsPath != "" {
		router.Handle(h.opts.MetricsPath, promhttp.HandlerFor(h.gatherer(), promhttp.HandlerOpts{}))
	}
	return router
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Router().ServeHTTP(w, r)
}

func (h *Hub) gatherer() prometheus.Gatherer {
	if h.registry != nil {
		return h.registry
	}
	if g, ok := h.opts.Registerer.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, constants.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

type health struct {
	Status   string `json:"status"`
	ID       string `json:"id"`
	Peers    int    `json:"peers"`
	Projects int    `json:"projects"`
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	res := health{Status: "ok", ID: h.id, Peers: len(h.peers), Projects: len(h.sessions)}
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, res)
}

func (h *Hub) handleListProjects(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if records == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Hub) handleGetProject(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Hub) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.LoadSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDeleteProject removes a project from the catalog. Projects that a
// peer has open cannot be deleted.
func (h *Hub) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.mu.Lock()
	_, open := h.sessions[id]
	h.mu.Unlock()
	if open {
		respondError(w, http.StatusConflict, "project is open")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	h.logger.Info("project deleted", "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}
