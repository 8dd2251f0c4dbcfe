package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fixora"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by this context.",
		},
	)

	statusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_updates_total",
			Help:      "Booking status updates by outcome.",
		},
		[]string{"result"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_published_total",
			Help:      "Sync events published by type.",
		},
		[]string{"event_type"},
	)

	eventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_delivered_total",
			Help:      "Sync events delivered to subscribers by type and path.",
		},
		[]string{"event_type", "path"},
	)

	storeConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_version_conflicts_total",
			Help:      "Optimistic concurrency conflicts by collection.",
		},
		[]string{"collection"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingsCreated, statusUpdates, eventsPublished, eventsDelivered, storeConflicts)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncStatusUpdate records the outcome of applying a status update
// (applied, duplicate, not_found, invalid_transition, error).
func IncStatusUpdate(result string) {
	statusUpdates.WithLabelValues(result).Inc()
}

func IncEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// IncEventDelivered counts a delivery on the "local" or "remote" path.
func IncEventDelivered(eventType, path string) {
	eventsDelivered.WithLabelValues(eventType, path).Inc()
}

func IncStoreConflict(collection string) {
	storeConflicts.WithLabelValues(collection).Inc()
}
