package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	assignCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusdesk",
			Name:      "queue_assignments_total",
			Help:      "Ticket office assignments by result (queued, unrouted, error)",
		},
		[]string{"result"},
	)
	renumberCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusdesk",
			Name:      "queue_renumber_total",
			Help:      "Renumbering passes per office",
		},
		[]string{"office"},
	)
	queueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "campusdesk",
			Name:      "queue_length",
			Help:      "Active tickets per office after the last queue mutation",
		},
		[]string{"office"},
	)
	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "campusdesk",
			Name:      "queue_lock_wait_seconds",
			Help:      "Time spent waiting for a per-office queue lock",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5},
		},
	)
	registerOnce sync.Once
)

// RegisterCollectors registers the domain collectors once, into reg or the default registry.
func RegisterCollectors(reg *prometheus.Registry) {
	registerOnce.Do(func() {
		cs := []prometheus.Collector{assignCounter, renumberCounter, queueLength, lockWait}
		if reg != nil {
			reg.MustRegister(cs...)
			return
		}
		prometheus.MustRegister(cs...)
	})
}

// ObserveAssignment records the outcome of one office assignment.
func ObserveAssignment(result string) { assignCounter.WithLabelValues(result).Inc() }

// ObserveRenumber records a renumbering pass and the resulting queue length.
func ObserveRenumber(office string, length int) {
	renumberCounter.WithLabelValues(office).Inc()
	queueLength.WithLabelValues(office).Set(float64(length))
}

// SetQueueLength publishes the active queue length of an office.
func SetQueueLength(office string, length int) {
	queueLength.WithLabelValues(office).Set(float64(length))
}

func ObserveLockWait(d time.Duration) { lockWait.Observe(d.Seconds()) }
