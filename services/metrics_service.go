package services

import (
	"sync/atomic"

	"service-nanny/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_nanny_http_requests_total",
			Help: "Total control surface requests",
		},
		[]string{"route"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_nanny_http_request_errors_total",
			Help: "Control surface requests answered with status >= 400",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_nanny_http_request_duration_seconds",
			Help:    "Duration of control surface requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	lifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_nanny_lifecycle_operations_total",
			Help: "Lifecycle operations by action and outcome",
		},
		[]string{"service", "action", "outcome"},
	)

	resourceHolder = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "service_nanny_resource_holder",
			Help: "1 for the service currently holding the exclusive resource",
		},
		[]string{"service"},
	)

	serviceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "service_nanny_service_healthy",
			Help: "Last polled health of running services, 1 healthy and 0 unhealthy",
		},
		[]string{"service"},
	)

	// 本地计数器，供 /health 直接读取
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestErrors)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(lifecycleOps)
	prometheus.MustRegister(resourceHolder)
	prometheus.MustRegister(serviceHealthy)
}

func IncrementRequestCount(route string) {
	totalRequests.Add(1)
	requestCount.WithLabelValues(route).Inc()
}

func IncrementErrorCount(route string) {
	totalErrors.Add(1)
	requestErrors.WithLabelValues(route).Inc()
}

func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

func GetTotalRequestCount() int64 {
	return totalRequests.Load()
}

func GetTotalErrorCount() int64 {
	return totalErrors.Load()
}

func recordLifecycle(service string, action models.EventAction, outcome models.EventOutcome) {
	lifecycleOps.WithLabelValues(service, string(action), string(outcome)).Inc()
}

func setHolderGauge(previous, current string) {
	if previous != "" {
		resourceHolder.DeleteLabelValues(previous)
	}
	if current != "" {
		resourceHolder.WithLabelValues(current).Set(1)
	}
}

func setHealthGauge(service string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	serviceHealthy.WithLabelValues(service).Set(v)
}

func dropHealthGauge(service string) {
	serviceHealthy.DeleteLabelValues(service)
}
