package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	compileDuration prom.Histogram
	loadDuration    prom.Histogram
	buildOutcome    *prom.CounterVec
	bundleBytes     prom.Gauge
	bundleInputs    prom.Gauge
	syncPhases      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		compileDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "compile_duration_seconds",
			Help:      "Duration of incremental compiles",
			Buckets:   prom.DefBuckets,
		}),
		loadDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "load_duration_seconds",
			Help:      "Duration of loading a compiled bundle",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "rebuild_requests_total",
			Help:      "Rebuild requests by outcome",
		}, []string{"outcome"}),
		bundleBytes: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "bundle_bytes",
			Help:      "Size of the last compiled bundle",
		}),
		bundleInputs: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "bundle_inputs",
			Help:      "Number of inputs in the last compiled bundle",
		}),
		syncPhases: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "sync_phases_total",
			Help:      "Sync phases by result",
		}, []string{"phase", "result"}),
	}
	reg.MustRegister(pr.compileDuration, pr.loadDuration, pr.buildOutcome, pr.bundleBytes, pr.bundleInputs, pr.syncPhases)
	return pr
}

func (p *PrometheusRecorder) ObserveCompileDuration(d time.Duration) {
	p.compileDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveLoadDuration(d time.Duration) {
	p.loadDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetBundleSize(bytes int64, inputs int) {
	p.bundleBytes.Set(float64(bytes))
	p.bundleInputs.Set(float64(inputs))
}

func (p *PrometheusRecorder) IncSyncPhase(phase string, result ResultLabel) {
	p.syncPhases.WithLabelValues(phase, string(result)).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
