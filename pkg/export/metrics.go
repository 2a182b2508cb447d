package export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "trolo_export"

// Metrics records export outcomes in its own registry so a run can be
// written out in node_exporter textfile format.
type Metrics struct {
	Registry *prometheus.Registry

	exports      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	artifactSize *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exports_total",
			Help:      "Counter of the number of exports by format and outcome.",
		}, []string{"format", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "duration_seconds",
			Help:      "Histogram of the export duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"format"}),
		artifactSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last exported artifact.",
		}, []string{"format"}),
	}
}

func (m *Metrics) observe(format Format, outcome string, elapsed time.Duration, size int64) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format.String(), outcome).Inc()
	m.duration.WithLabelValues(format.String()).Observe(elapsed.Seconds())
	if size >= 0 {
		m.artifactSize.WithLabelValues(format.String()).Set(float64(size))
	}
}

// WriteFile writes the metrics to path in textfile collector format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
