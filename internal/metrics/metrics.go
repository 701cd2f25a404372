package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	probeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devstack",
			Subsystem: "poller",
			Name:      "probe_attempts_total",
			Help:      "Readiness probe attempts per service.",
		}, []string{"service", "result"},
	)
	stageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devstack",
			Subsystem: "sequencer",
			Name:      "stage_transitions_total",
			Help:      "Bootstrap stage transitions.",
		}, []string{"from", "to"},
	)
	migrationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devstack",
			Subsystem: "migrate",
			Name:      "applied_total",
			Help:      "Migrations applied per engine and direction.",
		}, []string{"engine", "direction"},
	)
	resourcesEnsured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devstack",
			Subsystem: "provision",
			Name:      "resources_ensured_total",
			Help:      "Resources confirmed present or created.",
		}, []string{"kind"},
	)
)

// Register registers all metrics with the provided registerer. It is safe to
// call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{probeAttempts, stageTransitions, migrationsApplied, resourcesEnsured}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving the default gatherer. The caller
// wires it into a server for the duration of the run.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until the process exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// Helpers below no-op if Register hasn't been called.

func IncProbeAttempt(service string, ready bool) {
	if regOK.Load() {
		result := "not_ready"
		if ready {
			result = "ready"
		}
		probeAttempts.WithLabelValues(service, result).Inc()
	}
}

func RecordStageTransition(from, to string) {
	if regOK.Load() {
		stageTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncMigrationApplied(engine, direction string) {
	if regOK.Load() {
		migrationsApplied.WithLabelValues(engine, direction).Inc()
	}
}

func IncResourceEnsured(kind string) {
	if regOK.Load() {
		resourcesEnsured.WithLabelValues(kind).Inc()
	}
}
