package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuku/connpool/internal/pool"
	"github.com/yuku/connpool/internal/registry"
	"go.uber.org/zap"
)

type poolStatus struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Size     int        `json:"size"`
	Free     int        `json:"free"`
	MaxSize  int        `json:"max_size"`
	Boundary int        `json:"boundary"`
	Stats    pool.Stats `json:"stats"`
}

func statusOf(p *pool.Pool) poolStatus {
	return poolStatus{
		Name:     p.Name(),
		State:    p.State().String(),
		Size:     p.Size(),
		Free:     p.FreeSize(),
		MaxSize:  p.MaxSize(),
		Boundary: p.Boundary(),
		Stats:    p.Stats(),
	}
}

// newRouter serves the pools of reg and the metrics gathered by gatherer.
func newRouter(reg *registry.Registry, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		for _, p := range reg.Pools() {
			if p.State() != pool.StateConnected {
				writeJSON(w, logger, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"pool":   p.Name(),
				})
				return
			}
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/pools", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			pools := reg.Pools()
			statuses := make([]poolStatus, 0, len(pools))
			for _, p := range pools {
				statuses = append(statuses, statusOf(p))
			}
			writeJSON(w, logger, http.StatusOK, statuses)
		})
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			p, ok := reg.Get(chi.URLParam(req, "name"))
			if !ok {
				writeJSON(w, logger, http.StatusNotFound, map[string]string{"error": "pool not found"})
				return
			}
			writeJSON(w, logger, http.StatusOK, statusOf(p))
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}
