package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsProcessedTotal,
		renderDurationSeconds,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_processed_total",
			Help: "Total number of image jobs processed, labeled by provider and status.",
		},
		[]string{"provider", "status"}, // 'completed', 'failed'
	)

	renderDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_render_duration_seconds",
			Help:    "Render call duration distribution per provider/model.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"provider", "model", "success"},
	)
)

func IncJobProcessed(provider, status string) {
	jobsProcessedTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func ObserveRender(provider, model string, d time.Duration, success bool) {
	renderDurationSeconds.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(d.Seconds())
}
