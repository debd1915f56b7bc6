package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// metricsHandler serves the custom registry in Prometheus exposition format.
func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
