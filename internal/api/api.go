package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"correlationbrain/internal/entityindex"
	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

// Brain is the part of the correlation engine exposed over HTTP.
type Brain interface {
	Statistics() models.Statistics
	History(entity string) []models.Alert
	Reset()
}

// EntityIndex is the optional persistent incident index.
type EntityIndex interface {
	Top(ctx context.Context, n int64) ([]entityindex.EntityState, error)
	Get(ctx context.Context, entity string) (entityindex.EntityState, bool, error)
}

// API serves brain statistics, entity lookups and metrics.
type API struct {
	router   *mux.Router
	brain    Brain
	index    EntityIndex
	gatherer prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
}

// New builds the router. index may be nil; gatherer defaults to the global registry.
func New(brain Brain, index EntityIndex, gatherer prometheus.Gatherer) *API {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	a := &API{
		router:   mux.NewRouter(),
		brain:    brain,
		index:    index,
		gatherer: gatherer,
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/statistics", a.getStatistics).Methods(http.MethodGet)
	a.router.HandleFunc("/reset", a.reset).Methods(http.MethodPost)
	a.router.HandleFunc("/entities/top", a.getTopEntities).Methods(http.MethodGet)
	a.router.HandleFunc("/entities/{entity:.+}", a.getEntity).Methods(http.MethodGet)
	a.router.HandleFunc("/healthz", a.healthCheck).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the HTTP handler.
func (a *API) Handler() http.Handler {
	return a.router
}

// Start serves on addr until Stop is called.
func (a *API) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	logger.Infof("API listening on %s", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (a *API) getStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.brain.Statistics())
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	a.brain.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type entityResponse struct {
	Entity string                   `json:"entity"`
	Alerts []models.Alert           `json:"alerts"`
	Index  *entityindex.EntityState `json:"index,omitempty"`
}

func (a *API) getEntity(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	resp := entityResponse{Entity: entity, Alerts: a.brain.History(entity)}
	if resp.Alerts == nil {
		resp.Alerts = []models.Alert{}
	}
	if a.index != nil {
		st, found, err := a.index.Get(r.Context(), entity)
		if err != nil {
			logger.Warnf("Entity index lookup for %s failed: %v", entity, err)
		} else if found {
			resp.Index = &st
		}
	}
	if len(resp.Alerts) == 0 && resp.Index == nil {
		writeError(w, http.StatusNotFound, "entity not tracked")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getTopEntities(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(w, http.StatusServiceUnavailable, "entity index disabled")
		return
	}
	n := int64(10)
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 || v > 1000 {
			writeError(w, http.StatusBadRequest, "n must be between 1 and 1000")
			return
		}
		n = v
	}
	states, err := a.index.Top(r.Context(), n)
	if err != nil {
		logger.Errorf("Entity index query failed: %v", err)
		writeError(w, http.StatusBadGateway, "entity index unavailable")
		return
	}
	if states == nil {
		states = []entityindex.EntityState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
