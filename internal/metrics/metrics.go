// Package metrics abstracts the analytics collaborator that counts
// resolutions. The engine takes a Recorder; delivery is fire-and-forget and
// can never fail a resolution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives one event per successful resolution.
type Recorder interface {
	ResolutionRecorded(action string, auto bool)
}

// Noop discards all events. It is the default so the engine is testable
// without a metrics backend.
type Noop struct{}

func (Noop) ResolutionRecorded(string, bool) {}

// Prometheus counts resolutions in a private registry.
type Prometheus struct {
	registry *prometheus.Registry
	byAction *prometheus.CounterVec
	total    prometheus.Counter
	manual   prometheus.Counter
	auto     prometheus.Counter
}

// NewPrometheus builds a recorder with its own registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		byAction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolutions_by_action_total",
			Help: "Conflict resolutions by action.",
		}, []string{"action"}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolutions_total",
			Help: "Total conflict resolutions.",
		}),
		manual: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolutions_manual_total",
			Help: "Resolutions applied by an operator.",
		}),
		auto: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolutions_auto_total",
			Help: "Resolutions applied by the auto resolver.",
		}),
	}
	reg.MustRegister(p.byAction, p.total, p.manual, p.auto)
	return p
}

func (p *Prometheus) ResolutionRecorded(action string, auto bool) {
	p.byAction.WithLabelValues(action).Inc()
	p.total.Inc()
	if auto {
		p.auto.Inc()
	} else {
		p.manual.Inc()
	}
}

// Handler exposes the registry for scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
