package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	BridgeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_runs_total",
		Help: "The total number of bridge runs by outcome",
	}, []string{"network", "outcome"})

	BridgeRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stellar_bridge_run_seconds",
		Help:    "Time taken by a bridge run from policy gate to result",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2min
	}, []string{"network"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_submissions_total",
		Help: "The total number of submitted transactions by operation kind",
	}, []string{"network", "kind"})

	SubmissionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_submission_errors_total",
		Help: "Total number of rejected submissions by operation kind",
	}, []string{"network", "kind"})

	PollAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stellar_bridge_poll_attempts",
		Help:    "Number of status queries issued per confirmation",
		Buckets: prometheus.LinearBuckets(1, 5, 7),
	}, []string{"network", "status"})

	Restores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_restores_total",
		Help: "The total number of state restores by outcome",
	}, []string{"network", "outcome"})

	TrustlineAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_trustline_adjustments_total",
		Help: "The total number of submitted trust line adjustments",
	}, []string{"network", "asset"})

	ContractInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_contract_invocations_total",
		Help: "The total number of contract invocations by function and outcome",
	}, []string{"network", "function", "outcome"})

	RouterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_router_requests_total",
		Help: "The total number of bridge router API requests by path and status",
	}, []string{"path", "status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stellar_bridge_queue_depth",
		Help: "The number of transfers waiting for a worker",
	})

	CircuitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_circuit_rejections_total",
		Help: "Number of transfers rejected because the circuit breaker was open",
	}, []string{"network"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_dispatch_failures_total",
		Help: "Failed dispatched transfers by error type",
	}, []string{"network", "error_type"})

	CircuitTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_bridge_circuit_trips_total",
		Help: "Number of times the circuit breaker tripped",
	}, []string{"network"})
)
