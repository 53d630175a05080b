package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects the metrics of one deploy invocation on its own registry, so the
// result can be dumped for a node exporter textfile collector after the process is done.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	secretsResolved    prometheus.Gauge
	sidecarsRegistered *prometheus.CounterVec
	autoscalingFailure prometheus.Counter
	lastSuccess        *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ecsrollout_runs_total",
			Help: "Deploy runs by strategy and result",
		}, []string{"strategy", "result"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecsrollout_run_duration_seconds",
			Help:    "Wall-clock duration of a deploy run",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"strategy"}),
		secretsResolved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ecsrollout_secrets_resolved",
			Help: "Secret references attached to the registered revision",
		}),
		sidecarsRegistered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ecsrollout_revision_sidecars_total",
			Help: "Sidecar containers carried by registered revisions",
		}, []string{"container"}),
		autoscalingFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "ecsrollout_autoscaling_failures_total",
			Help: "Autoscaling configurations that failed after a successful rollout",
		}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ecsrollout_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per service",
		}, []string{"cluster", "service"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records the outcome of a run. An empty strategy means the run failed before
// one was selected.
func (r *Recorder) ObserveRun(strategy string, err error, elapsed time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.runsTotal.WithLabelValues(strategy, result).Inc()
	r.runDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (r *Recorder) SecretsResolved(n int) {
	r.secretsResolved.Set(float64(n))
}

func (r *Recorder) SidecarRegistered(container string) {
	r.sidecarsRegistered.WithLabelValues(container).Inc()
}

func (r *Recorder) AutoscalingFailed() {
	r.autoscalingFailure.Inc()
}

func (r *Recorder) Succeeded(cluster, service string, at time.Time) {
	r.lastSuccess.WithLabelValues(cluster, service).Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text exposition format. The file is replaced
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
