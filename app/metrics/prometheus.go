package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartims_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartims_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartims_tool_calls_total",
			Help: "Total number of MCP tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartims_llm_requests_total",
			Help: "Total number of text-to-SQL translations by outcome.",
		},
		[]string{"outcome"},
	)
	llmRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartims_llm_request_duration_seconds",
			Help:    "Histogram of Ollama generate call durations.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	inventoryAddedUnits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartims_inventory_added_units_total",
			Help: "Total number of units added through add_inventory.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(toolCallsTotal)
	prometheus.MustRegister(llmRequestsTotal)
	prometheus.MustRegister(llmRequestDuration)
	prometheus.MustRegister(inventoryAddedUnits)
}

// RecordRequest records metrics for an HTTP request
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordToolCall counts one tool invocation
func RecordToolCall(tool string, success bool) {
	toolCallsTotal.WithLabelValues(tool, outcome(success)).Inc()
}

// RecordLLMRequest records one translation; outcome is "success", "cached",
// "unavailable" or "error"
func RecordLLMRequest(outcome string, duration time.Duration) {
	llmRequestsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		llmRequestDuration.Observe(duration.Seconds())
	}
}

// RecordInventoryAdded counts units added to stock
func RecordInventoryAdded(quantity int) {
	if quantity > 0 {
		inventoryAddedUnits.Add(float64(quantity))
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// classifyStatus groups an HTTP status code into its class
func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	}
	return "unknown"
}

// MetricsHandler returns the HTTP handler exporting Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
