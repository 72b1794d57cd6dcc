package transfer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

func init() {
	prometheus.MustRegister(promTransfersTotal, promTransferBytesTotal)
}

// Directions of a transfer as seen from the local peer.
const (
	Upload   = "upload"
	Download = "download"
)

var promTransfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fileshare_transfers_total",
	Help: "The number of finished transfers",
}, []string{"direction", "result"})

var promTransferBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fileshare_transfer_bytes_total",
	Help: "The number of payload bytes moved over transfer connections",
}, []string{"direction"})

func recordTransfer(direction string, n int64, err error) {
	result := "success"
	if err != nil {
		var clientErr sharing.ClientError
		if errors.As(err, &clientErr) {
			result = clientErr.Error()
		} else {
			result = "internal error"
		}
	}

	promTransfersTotal.WithLabelValues(direction, result).Inc()
	promTransferBytesTotal.WithLabelValues(direction).Add(float64(n))
}
