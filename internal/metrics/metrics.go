// Package metrics counts runs and trial batches in Prometheus form.
//
// racelab is a short-lived CLI, so nothing is served over HTTP. A Recorder
// owns its own registry and the trials command dumps it in text exposition
// format for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/racelab/internal/harness"
)

const namespace = "racelab"

// Recorder holds the racelab collectors.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	reg *prometheus.Registry

	// runs counts finished runs.
	// Labels: scenario, mode, verdict
	runs *prometheus.CounterVec

	// runDuration measures wall time per run.
	// Labels: scenario, mode
	runDuration *prometheus.HistogramVec

	// faults counts harness faults by code.
	// Labels: scenario, code
	faults *prometheus.CounterVec

	// expectedRate is the share of the last trial batch that produced the
	// verdict its mode should produce.
	// Labels: scenario, mode
	expectedRate *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total scenario runs by verdict",
		}, []string{"scenario", "mode", "verdict"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Scenario run wall time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"scenario", "mode"}),
		faults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harness_faults_total",
			Help:      "Total harness faults by code",
		}, []string{"scenario", "code"}),
		expectedRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trials",
			Name:      "expected_ratio",
			Help:      "Share of the last trial batch with the expected verdict",
		}, []string{"scenario", "mode"}),
	}
}

// Registry returns the registry the collectors are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(res *harness.Result) {
	mode := string(res.Mode)
	r.runs.WithLabelValues(res.Scenario, mode, string(res.Verdict)).Inc()
	r.runDuration.WithLabelValues(res.Scenario, mode).Observe(res.Elapsed.Seconds())
	if res.Fault != nil {
		r.faults.WithLabelValues(res.Scenario, string(res.Fault.Code)).Inc()
	}
}

// ObserveTrials records every run of a batch and its expected-verdict rate.
func (r *Recorder) ObserveTrials(sum *harness.TrialSummary) {
	for _, res := range sum.Results {
		if res != nil {
			r.ObserveRun(res)
		}
	}
	r.expectedRate.WithLabelValues(sum.Scenario, string(sum.Mode)).Set(sum.Rate())
}

// WriteTextfile writes every metric to path in text exposition format. The
// file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
