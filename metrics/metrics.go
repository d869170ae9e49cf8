// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	MessagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportsink_messages_processed_total",
		Help: "Count of broker messages pulled and processed, per queue.",
	}, []string{"queue"})

	Flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportsink_flushes_total",
		Help: "Count of sign-collapse flushes, per destination table.",
	}, []string{"table"})

	RowsInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportsink_rows_inserted_total",
		Help: "Count of rows appended to the columnar store, per table.",
	}, []string{"table"})

	DeadLetters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reportsink_dead_letters_total",
		Help: "Count of messages diverted to the dead-letter sink, per queue.",
	}, []string{"queue"})

	QuarantinedQueues = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reportsink_quarantined_queues",
		Help: "Number of queues currently excluded from scheduling.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesProcessed,
		Flushes,
		RowsInserted,
		DeadLetters,
		QuarantinedQueues,
	)
}

// ServeDebug starts a blocking /metrics listener. Callers run it in its
// own goroutine; a listen failure is logged and not fatal to ingestion.
func ServeDebug(addr string) {
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithFields(log.Fields{"addr": addr, "err": err}).
			Warn("debug metrics listener exited")
	}
}
