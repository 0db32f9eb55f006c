package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Roles           *prometheus.CounterVec
	Extracted       *prometheus.CounterVec
	ExtractorErrors *prometheus.CounterVec
	Saved           *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	RoleDuration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Roles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscrape_roles_total",
				Help: "Roles processed by outcome",
			},
			[]string{"status"},
		),
		Extracted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscrape_records_extracted_total",
				Help: "Records returned by each extractor",
			},
			[]string{"extractor"},
		),
		ExtractorErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscrape_extractor_errors_total",
				Help: "Extractor calls that failed",
			},
			[]string{"extractor"},
		),
		Saved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscrape_records_saved_total",
				Help: "Records handed to storage by handler and result",
			},
			[]string{"handler", "result"},
		),
		HandlerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscrape_handler_errors_total",
				Help: "Storage calls that failed",
			},
			[]string{"handler"},
		),
		RoleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobscrape_role_duration_seconds",
			Help:    "Wall time spent on one role",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
}
