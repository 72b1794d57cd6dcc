package tcp

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

func init() {
	prometheus.MustRegister(promCommandDurationMilliseconds, promConnectionsCount)
}

var promCommandDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fileshare_command_duration_milliseconds",
		Help:    "The duration of time it takes to answer a control command",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	},
	[]string{"command", "result"},
)

var promConnectionsCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "fileshare_connections_count",
	Help: "The number of open control connections",
})

// recordCommandDuration records the duration of time to answer a command in
// milliseconds.
func recordCommandDuration(kind sharing.CommandKind, err error, duration time.Duration) {
	var result string
	if err != nil {
		var clientErr sharing.ClientError
		if errors.As(err, &clientErr) {
			result = clientErr.Error()
		} else {
			result = "internal error"
		}
	}

	promCommandDurationMilliseconds.
		WithLabelValues(kind.String(), result).
		Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}
