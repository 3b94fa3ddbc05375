package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "villaops"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by source.",
		},
		[]string{"source"},
	)

	conflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Overlap conflicts flagged by kind.",
		},
		[]string{"kind"},
	)

	subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Active change feed subscribers.",
	})

	droppedChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_dropped_changes_total",
		Help:      "Changes dropped because a subscriber buffer was full.",
	})

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Spreadsheet sync tasks by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Staff notifications by channel and result.",
		},
		[]string{"channel", "result"},
	)

	escalations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_escalations_total",
		Help:      "AI approval decisions escalated for human review.",
	})
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			conflictsDetected,
			subscribers,
			droppedChanges,
			syncTasks,
			notifications,
			escalations,
		)
	})
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

func IncBookingCreated(source string) {
	bookingsCreated.WithLabelValues(source).Inc()
}

func AddConflicts(kind string, n int) {
	if n <= 0 {
		return
	}
	conflictsDetected.WithLabelValues(kind).Add(float64(n))
}

func SubscriberAdded()   { subscribers.Inc() }
func SubscriberRemoved() { subscribers.Dec() }
func ChangeDropped()     { droppedChanges.Inc() }

func IncSyncTask(result string) {
	syncTasks.WithLabelValues(result).Inc()
}

func IncNotification(channel, result string) {
	notifications.WithLabelValues(channel, result).Inc()
}

func IncEscalation() {
	escalations.Inc()
}
