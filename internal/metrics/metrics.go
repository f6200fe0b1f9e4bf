// Package metrics exposes Prometheus collectors for the disclosure watcher.
//
// The process has no listening surface, so collectors live in a dedicated
// registry that is pushed to a Pushgateway instead of being scraped.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every kapwatch collector.
var Registry = prometheus.NewRegistry()

var (
	cyclesTotal           *prometheus.CounterVec
	recordsFetchedTotal   prometheus.Counter
	recordsMalformedTotal prometheus.Counter
	dispatchTotal         *prometheus.CounterVec
	sessionRecyclesTotal  *prometheus.CounterVec
	fetchDurationSeconds  prometheus.Histogram
	ledgerSize            prometheus.Gauge
	supervisorState       prometheus.Gauge
	throttleDelaySeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(Registry)

		cyclesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kapwatch_cycles_total",
				Help: "Total number of scan cycles, labeled by final status.",
			},
			[]string{"status"},
		)

		recordsFetchedTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kapwatch_records_fetched_total",
				Help: "Total number of raw records returned by the fetcher.",
			},
		)

		recordsMalformedTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kapwatch_records_malformed_total",
				Help: "Total number of raw records dropped by the normalizer.",
			},
		)

		dispatchTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kapwatch_dispatch_total",
				Help: "Total number of notification attempts, labeled by result.",
			},
			[]string{"result"},
		)

		sessionRecyclesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kapwatch_session_recycles_total",
				Help: "Total number of fetch session teardowns, labeled by reason.",
			},
			[]string{"reason"},
		)

		fetchDurationSeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kapwatch_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
			},
		)

		ledgerSize = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kapwatch_ledger_size",
				Help: "Number of identity keys currently held by the dedup ledger.",
			},
		)

		supervisorState = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kapwatch_supervisor_state",
				Help: "Current supervisor state as its numeric code.",
			},
		)

		throttleDelaySeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kapwatch_dispatch_throttle_seconds",
				Help:    "Time spent waiting for the per-destination dispatch limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"destination"},
		)
	})
}

// ObserveCycle increments the cycle counter for the given status.
func ObserveCycle(status string) {
	Init()
	cyclesTotal.WithLabelValues(status).Inc()
}

// ObserveRecords adds fetched and malformed record counts.
func ObserveRecords(fetched, malformed int) {
	Init()
	if fetched > 0 {
		recordsFetchedTotal.Add(float64(fetched))
	}
	if malformed > 0 {
		recordsMalformedTotal.Add(float64(malformed))
	}
}

// ObserveDispatch increments the dispatch counter for result ("ok" or "error").
func ObserveDispatch(result string) {
	Init()
	dispatchTotal.WithLabelValues(result).Inc()
}

// ObserveRecycle increments the session recycle counter.
func ObserveRecycle(reason string) {
	Init()
	sessionRecyclesTotal.WithLabelValues(reason).Inc()
}

// ObserveFetchDuration records the duration of one fetch call.
func ObserveFetchDuration(d time.Duration) {
	Init()
	fetchDurationSeconds.Observe(d.Seconds())
}

// SetLedgerSize publishes the ledger size.
func SetLedgerSize(n int) {
	Init()
	ledgerSize.Set(float64(n))
}

// SetSupervisorState publishes the supervisor state code.
func SetSupervisorState(code int) {
	Init()
	supervisorState.Set(float64(code))
}

// ObserveThrottleDelay records time spent waiting on the dispatch limiter.
func ObserveThrottleDelay(destination string, d time.Duration) {
	Init()
	throttleDelaySeconds.WithLabelValues(destination).Observe(d.Seconds())
}
