package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "provisioner"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// deployments run for minutes, not milliseconds
var deploymentBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800}

var (
	OrchestratorRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orchestrator_requests_total",
		Help:      "Instance creation requests by result",
	}, []string{"result"})

	Deployments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deployments_total",
		Help:      "Finished deployment attempts by outcome",
	}, []string{"outcome"})

	DeploymentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "deployment_duration_seconds",
		Help:      "Wall time of the external deployment action",
		Buckets:   deploymentBuckets,
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Deployment jobs waiting for a worker",
	})

	WorkerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_panics_total",
		Help:      "Panics recovered in deployment workers",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	RateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route"})
)

// Collectors returns every collector owned by this package
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OrchestratorRequests,
		Deployments,
		DeploymentDuration,
		QueueDepth,
		WorkerPanics,
		HTTPRequests,
		HTTPRequestDuration,
		RateLimitHits,
	}
}

// Register adds the collectors to reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	for _, collector := range Collectors() {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one finished HTTP request
func ObserveRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	HTTPRequests.With(labels).Inc()
	HTTPRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveDeployment records one finished deployment attempt
func ObserveDeployment(outcome string, duration time.Duration) {
	Deployments.WithLabelValues(outcome).Inc()
	DeploymentDuration.Observe(duration.Seconds())
}
