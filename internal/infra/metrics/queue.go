package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		queueDepth,
		rateLimitRejectionsTotal,
	)
}

var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_queue_depth",
			Help: "Current number of jobs per status, sampled periodically.",
		},
		[]string{"status"},
	)

	rateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "HTTP requests rejected by the rate limiter, labeled by route.",
		},
		[]string{"route"},
	)
)

func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(norm(status)).Set(float64(n))
}

func IncRateLimited(route string) {
	rateLimitRejectionsTotal.WithLabelValues(route).Inc()
}
