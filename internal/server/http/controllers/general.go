package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/warden/internal/runtime"
	"github.com/rzbill/warden/internal/stats"
)

// GeneralController handles health and metrics endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given router.
//
// This method sets up HTTP endpoints for:
// - Liveness (/v1/healthz)
// - Component health records (/v1/health)
// - Prometheus metrics (/metrics)
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealthz)
	r.Get("/v1/health", c.handleHealth)
	if p, ok := c.rt.Stats().(*stats.Prometheus); ok {
		r.Method(http.MethodGet, "/metrics", p.Handler())
	}
}

// handleHealthz returns 200 OK with {"status": "ok"} if storage answers,
// 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleHealth returns the aggregate health record. Unhealthy components
// turn the status into 503 but the body is always the full record.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := c.rt.Health(r.Context())
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, h)
}
