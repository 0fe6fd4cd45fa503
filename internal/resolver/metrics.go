package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics counts scrape runs and the outcomes of their segments.
type metrics struct {
	runsTotal     *prometheus.CounterVec
	segmentsTotal *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runsActive    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelscout",
			Name:      "scrape_runs_total",
			Help:      "Scrape runs by outcome (completed, no_output, error).",
		}, []string{"outcome"}),
		segmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelscout",
			Name:      "scrape_segments_total",
			Help:      "Terminal segment updates by status.",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reelscout",
			Name:      "scrape_run_duration_seconds",
			Help:      "Duration of scrape runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		runsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelscout",
			Name:      "scrape_runs_active",
			Help:      "Scrape runs in progress.",
		}),
	}
}
