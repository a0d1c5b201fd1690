// Package health exposes client liveness and readiness over HTTP.
package health

import (
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/fsplugin/api"
)

// ReadinessTimeout bounds a single readiness probe.
const ReadinessTimeout = 2 * time.Second

// NewHandler returns a handler serving /live and /ready for h. With a non-nil
// registerer the check results are also exported as prometheus gauges.
func NewHandler(h api.Health, reg prometheus.Registerer) healthcheck.Handler {
	var handler healthcheck.Handler
	if reg != nil {
		handler = healthcheck.NewMetricsHandler(reg, "fsplugin")
	} else {
		handler = healthcheck.NewHandler()
	}
	handler.AddLivenessCheck("client", h.LivenessCheck)
	handler.AddReadinessCheck("engine", healthcheck.Timeout(h.ReadinessCheck, ReadinessTimeout))
	return handler
}
