package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// NotificationsPublished counts notifications that reached published, by origin.
	NotificationsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_published_total",
			Help: "Number of published notifications",
		},
		[]string{"source"},
	)

	RecipientsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_recipients_created_total",
			Help: "Number of recipient records created by fan-out",
		},
	)

	QueueEntriesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_queue_entries_created_total",
			Help: "Number of delivery queue entries created",
		},
	)

	// DuplicateSubscriptions counts redundant active rows for one device seen by the queue builder.
	DuplicateSubscriptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_duplicate_subscriptions_total",
			Help: "Number of duplicate active subscriptions skipped while queueing",
		},
	)

	QueueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_queue_transitions_total",
			Help: "Delivery queue transitions by resulting status",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_push_duration_seconds",
			Help:    "Histogram of push send durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	ScannerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_scanner_events_total",
			Help: "Reminder scanner events by outcome (fired, duplicate, error)",
		},
		[]string{"scanner", "outcome"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_job_runs_total",
			Help: "Scheduled job invocations by result",
		},
		[]string{"job", "result"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_kafka_messages_total",
			Help: "Kafka messages handled by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)
)

func Init() {
	prometheus.MustRegister(
		HTTPRequests, RequestDuration,
		NotificationsPublished, RecipientsCreated, QueueEntriesCreated, DuplicateSubscriptions,
		QueueTransitions, DeliveryDuration, ScannerEvents, JobRuns, KafkaMessages,
	)
}
