// Package metrics holds the Prometheus collectors exported at /prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelapi_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kernelapi_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"route"},
	)
	promLLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelapi_llm_calls_total",
			Help: "Total number of LLM completion calls",
		},
		[]string{"provider", "status"},
	)
	promPlanSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kernelapi_plan_steps",
			Help:    "Number of steps in created plans",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promLLMCalls)
	prometheus.MustRegister(promPlanSteps)
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	promRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	promRequestDuration.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

// ObserveLLMCall records one completion. It matches kernel.Observer.
func ObserveLLMCall(provider string, _ time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	promLLMCalls.WithLabelValues(provider, status).Inc()
}

// ObservePlan records the size of a created plan.
func ObservePlan(steps int) {
	promPlanSteps.Observe(float64(steps))
}
