package storage

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		PromMonitorDurationMilliseconds,
		PromSessionsCount,
		PromFilesCount,
		PromEvictionsTotal,
	)
}

var (
	// PromMonitorDurationMilliseconds is a histogram used by stores to record
	// how long a heartbeat monitor pass takes.
	PromMonitorDurationMilliseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fileshare_storage_monitor_duration_milliseconds",
		Help:    "The time it takes to scan sessions for expired heartbeats",
		Buckets: prometheus.ExponentialBuckets(0.125, 2, 10),
	})

	// PromSessionsCount is a gauge holding the number of live sessions.
	PromSessionsCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fileshare_sessions_count",
		Help: "The number of authenticated sessions",
	})

	// PromFilesCount is a gauge holding the number of published filenames.
	PromFilesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fileshare_files_count",
		Help: "The number of filenames in the file index",
	})

	// PromEvictionsTotal counts sessions evicted for missing heartbeats.
	PromEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_evictions_total",
		Help: "The number of sessions evicted by the heartbeat monitor",
	})
)
