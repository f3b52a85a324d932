package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlog_records_enqueued_total",
		Help: "Log records accepted into the delivery queue",
	}, []string{"kind"})

	RecordsFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlog_records_flushed_total",
		Help: "Log records handed to the store, by outcome",
	}, []string{"kind", "outcome"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlog_records_dropped_total",
		Help: "Log records discarded before reaching the store",
	}, []string{"reason"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerlog_queue_depth",
		Help: "Records currently waiting for a flush",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgerlog_flush_duration_seconds",
		Help:    "Time spent persisting one batch",
		Buckets: prometheus.DefBuckets,
	})

	ErrorRateAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlog_error_rate_alerts_total",
		Help: "Error-rate alerts raised per endpoint",
	}, []string{"endpoint"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerlog_http_request_duration_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerlog_active_sessions",
		Help: "Sessions held by the in-memory registry",
	})

	RecordsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlog_records_purged_total",
		Help: "Records removed by the retention reaper",
	}, []string{"kind"})
)
