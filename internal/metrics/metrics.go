package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_routes_total",
			Help: "Total number of routing decisions",
		},
		[]string{"task_type", "model", "source"},
	)

	RouteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_route_errors_total",
			Help: "Total number of failed routing attempts",
		},
		[]string{"reason"},
	)

	RouteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrouter_route_duration_seconds",
			Help:    "Time spent producing a routing decision",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"task_type"},
	)

	EstimatedCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_estimated_cost_usd_total",
			Help: "Sum of estimated cost for routed tasks",
		},
		[]string{"provider", "model"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_cache_hits_total",
			Help: "Total number of routing cache hits",
		},
		[]string{"task_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_cache_misses_total",
			Help: "Total number of routing cache misses",
		},
		[]string{"task_type"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_cache_invalidated_entries_total",
			Help: "Entries removed by targeted invalidation",
		},
		[]string{"task_type"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_provider_requests_total",
			Help: "Total number of completions sent to providers",
		},
		[]string{"provider", "model", "status"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrouter_provider_duration_seconds",
			Help:    "Provider completion latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"provider", "error_type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentrouter_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_rate_limit_hits_total",
			Help: "Total number of rejected requests per client",
		},
		[]string{"client_id"},
	)

	UsageRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_usage_records_total",
			Help: "Usage records handled by the recorder",
		},
		[]string{"status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrouter_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentrouter_active_connections",
			Help: "Number of active HTTP connections being processed",
		},
		[]string{"pod"},
	)

	InstanceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentrouter_instance_info",
			Help: "Instance information (always 1)",
		},
		[]string{"pod", "version"},
	)
)

// Route sources.
const (
	SourceCache    = "cache"
	SourceSelected = "selected"
)

func RecordRoute(taskType, model, source string, durationSec float64) {
	RoutesTotal.WithLabelValues(taskType, model, source).Inc()
	RouteDuration.WithLabelValues(taskType).Observe(durationSec)
}

func RecordRouteError(reason string) {
	RouteErrors.WithLabelValues(reason).Inc()
}

func RecordEstimatedCost(provider, model string, costUSD float64) {
	EstimatedCostTotal.WithLabelValues(provider, model).Add(costUSD)
}

func RecordCacheHit(taskType string) {
	CacheHits.WithLabelValues(taskType).Inc()
}

func RecordCacheMiss(taskType string) {
	CacheMisses.WithLabelValues(taskType).Inc()
}

func RecordCacheInvalidation(taskType string, removed int) {
	CacheInvalidations.WithLabelValues(taskType).Add(float64(removed))
}

func RecordProviderRequest(provider, model, status string, durationSec float64) {
	ProviderRequests.WithLabelValues(provider, model, status).Inc()
	ProviderDuration.WithLabelValues(provider, model).Observe(durationSec)
}

func RecordProviderError(provider, errorType string) {
	ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

func SetCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

func RecordRateLimitHit(clientID string) {
	RateLimitHits.WithLabelValues(clientID).Inc()
}

func RecordUsage(status string) {
	UsageRecords.WithLabelValues(status).Inc()
}

func RecordHTTPRequest(method, route, code string) {
	HTTPRequests.WithLabelValues(method, route, code).Inc()
}

var currentPodName string

// InitInstanceMetrics should be called once at startup.
func InitInstanceMetrics(podName, version string) {
	currentPodName = podName
	InstanceInfo.WithLabelValues(podName, version).Set(1)
}

func IncrementActiveConnections() {
	ActiveConnections.WithLabelValues(currentPodName).Inc()
}

func DecrementActiveConnections() {
	ActiveConnections.WithLabelValues(currentPodName).Dec()
}
