package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	steps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simview",
			Subsystem: "client",
			Name:      "steps_total",
			Help:      "Client steps by the state they started in.",
		},
		[]string{"state"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simview",
			Subsystem: "client",
			Name:      "step_duration_seconds",
			Help:      "Client step duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"state"},
	)
	replyBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simview",
			Subsystem: "transport",
			Name:      "reply_bytes",
			Help:      "Reassembled reply sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"request"},
	)
	reinits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simview",
			Subsystem: "client",
			Name:      "reinitializations_total",
			Help:      "Structural reinitializations triggered by configuration version changes.",
		},
		[]string{"namespace"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simview",
			Subsystem: "client",
			Name:      "errors_total",
			Help:      "Fatal step errors by kind.",
		},
		[]string{"kind"},
	)
	contactBatch = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simview",
			Subsystem: "client",
			Name:      "contact_batch_size",
			Help:      "Contacts decoded per update.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	entities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simview",
			Subsystem: "scene",
			Name:      "entities",
			Help:      "Registered scene identifiers by namespace.",
		},
		[]string{"namespace"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(steps, stepDuration, replyBytes, reinits, failures, contactBatch, entities)
	})
}

func RecordStep(state string, duration time.Duration) {
	RegisterMetrics()
	steps.WithLabelValues(state).Inc()
	stepDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func RecordReply(request string, n int) {
	RegisterMetrics()
	replyBytes.WithLabelValues(request).Observe(float64(n))
}

func RecordReinit(namespace string) {
	RegisterMetrics()
	reinits.WithLabelValues(namespace).Inc()
}

func RecordError(kind string) {
	RegisterMetrics()
	failures.WithLabelValues(kind).Inc()
}

func RecordContacts(n int) {
	RegisterMetrics()
	contactBatch.Observe(float64(n))
}

func SetEntities(namespace string, n int) {
	RegisterMetrics()
	entities.WithLabelValues(namespace).Set(float64(n))
}
