package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	TxQueuedTotal       *prometheus.CounterVec
	TxSubmittedTotal    *prometheus.CounterVec
	TxFailedTotal       *prometheus.CounterVec
	TxRejectedTotal     prometheus.Counter
	DeploymentsTotal    *prometheus.CounterVec
	GasEstimateUnits    prometheus.Histogram
	PendingQueueLength  prometheus.Gauge
	SubmitDuration      prometheus.Histogram
	FunctionCallsTotal  *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxQueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_tx_queued_total",
			Help: "The total number of queued transactions",
		}, []string{"kind"}), // kind: transfer, call, deploy
		TxSubmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_tx_submitted_total",
			Help: "The total number of transactions accepted by the node",
		}, []string{"kind"}),
		TxFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_tx_failed_total",
			Help: "The total number of failed submissions",
		}, []string{"kind"}),
		TxRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "signer_tx_rejected_total",
			Help: "The total number of user-rejected transactions",
		}),
		DeploymentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_deployments_total",
			Help: "The total number of contract deployment attempts",
		}, []string{"result"}), // result: success, failed
		GasEstimateUnits: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "signer_gas_estimate_units",
			Help:    "Distribution of estimated gas units",
			Buckets: []float64{21000, 50000, 100000, 300000, 1000000, 3000000, 8000000},
		}),
		PendingQueueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "signer_pending_queue_length",
			Help: "Current number of pending transaction records",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "signer_submit_duration_seconds",
			Help:    "Duration of the authorize-sign-submit critical path",
			Buckets: prometheus.DefBuckets,
		}),
		FunctionCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_function_calls_total",
			Help: "The total number of contract function invocations",
		}, []string{"mode", "result"}), // mode: read, write
	}
}
