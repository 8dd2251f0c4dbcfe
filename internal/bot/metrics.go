package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the professional front-end. Construct once per process.
type Metrics struct {
	UpdateProcessingTime prometheus.Histogram
	NotificationsSent    *prometheus.CounterVec
	Responses            *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fixora_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fixora_bot_notifications_sent_total",
			Help: "Booking notifications sent to professionals by result",
		}, []string{"result"}),
		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fixora_bot_booking_responses_total",
			Help: "Booking responses submitted through the bot by status",
		}, []string{"status"}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fixora_bot_errors_total",
			Help: "Panics recovered while handling updates",
		}),
	}
}
