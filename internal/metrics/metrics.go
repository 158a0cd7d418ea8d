package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskbot"

var (
	// Updates counts incoming Telegram updates by kind
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Total number of Telegram updates handled",
		},
		[]string{"kind"},
	)
	// Commands counts dispatched commands
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands dispatched",
		},
		[]string{"command"},
	)
	// Risks counts created risks by outcome of the draw
	Risks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risks_total",
			Help:      "Total number of risks taken",
		},
		[]string{"outcome"},
	)
	// PurgeRequests counts purge requests that reached confirmation
	PurgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "requests_total",
			Help:      "Total number of purge requests awaiting confirmation",
		},
		[]string{"path"},
	)
	// PurgedRecords counts risks marked purged
	PurgedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "records_total",
			Help:      "Total number of risks marked purged",
		},
	)
	// PurgeDeletes counts message delete attempts during finalization
	PurgeDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "deletes_total",
			Help:      "Total number of posted messages deleted during purges",
		},
		[]string{"result"},
	)
	// Verifications counts admin decisions on purge conditions
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "verifications_total",
			Help:      "Total number of admin verification decisions",
		},
		[]string{"decision"},
	)
	// ActiveSessions tracks purge sessions currently held in memory
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "active_sessions",
			Help:      "Number of purge sessions waiting for input",
		},
	)
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Updates, Commands, Risks,
			PurgeRequests, PurgedRecords, PurgeDeletes, Verifications, ActiveSessions,
		)
	})
}

// ObserveFinalize records the figures of one finalized batch
func ObserveFinalize(purged, deleted, failed int) {
	PurgedRecords.Add(float64(purged))
	PurgeDeletes.WithLabelValues("ok").Add(float64(deleted))
	PurgeDeletes.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
