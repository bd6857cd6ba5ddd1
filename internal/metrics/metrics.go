// Package metrics holds the Prometheus collectors for the data-access layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/robert-malhotra/virelay/errdefs"
)

// Components label values.
const (
	ComponentDataset     = "dataset"
	ComponentAttribution = "attribution"
	ComponentAnalysis    = "analysis"
)

var (
	// Reads counts read operations by component and outcome.
	Reads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virelay_reads_total",
		Help: "Read operations by component and outcome",
	}, []string{"component", "outcome"})

	// ReadDuration tracks read latency.
	ReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "virelay_read_duration_seconds",
		Help:    "Read duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	}, []string{"component"})

	// ProjectsOpen is the number of currently open projects.
	ProjectsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "virelay_projects_open",
		Help: "Number of open projects",
	})

	// ProjectOpenDuration tracks how long acquiring a project's resources takes.
	ProjectOpenDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "virelay_project_open_duration_seconds",
		Help:    "Project open duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errdefs.KindOf(err).String()
}

// ObserveRead records one read that started at start.
func ObserveRead(component string, start time.Time, err error) {
	Reads.WithLabelValues(component, Outcome(err)).Inc()
	ReadDuration.WithLabelValues(component).Observe(time.Since(start).Seconds())
}
