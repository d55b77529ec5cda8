package metric

import (
	"time"

	"github.com/hermeznetwork/zkwallet/log"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Metric represents the metric type
	Metric string
)

const (
	namespaceError  = "error"
	namespaceWallet = "wallet"
	namespaceRPC    = "rpc"
)

var (
	// Errors errors count metric.
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceError,
			Name:      "errors",
			Help:      "",
		}, []string{"error"})

	// Submissions submitted transactions count
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceWallet,
			Name:      "submissions_total",
			Help:      "Transactions accepted by a node, partitioned by chain and operation",
		}, []string{"chain", "operation"})

	// Rejections transactions that failed before inclusion or were
	// reverted
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceWallet,
			Name:      "rejections_total",
			Help:      "Operations that failed at estimation, submission or on chain",
		}, []string{"chain", "operation"})

	// WaitReceipt duration time waiting for a receipt or a finalization
	WaitReceipt = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceWallet,
			Name:      "wait_receipt",
			Help:      "",
		}, []string{"chain", "status"})

	// LastL2Finalized last finalized L2 block seen
	LastL2Finalized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceWallet,
			Name:      "l2_finalized_block_num",
			Help:      "",
		})
)

func init() {
	if err := registerCollectors(); err != nil {
		log.Error(err)
	}
}
func registerCollectors() error {
	if err := registerCollector(Errors); err != nil {
		return err
	}
	if err := registerCollector(Submissions); err != nil {
		return err
	}
	if err := registerCollector(Rejections); err != nil {
		return err
	}
	if err := registerCollector(WaitReceipt); err != nil {
		return err
	}
	return registerCollector(LastL2Finalized)
}

func registerCollector(collector prometheus.Collector) error {
	err := prometheus.Register(collector)
	if err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}

// CollectError collect the error message and increment
// the error count
func CollectError(err error) {
	Errors.With(map[string]string{"error": err.Error()}).Inc()
}
