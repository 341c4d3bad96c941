// Package observability registers the core's prometheus counters. Dashboards
// and exporters live outside the core; this is only the instrument surface.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_llm_requests_total",
		Help: "Chat-completion calls by outcome.",
	}, []string{"outcome"})

	tokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_llm_tokens_total",
		Help: "Tokens consumed by direction.",
	}, []string{"direction"})

	tasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_tasks_total",
		Help: "Executed tasks by outcome.",
	}, []string{"outcome"})

	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_tool_executions_total",
		Help: "Tool invocations by tool name.",
	}, []string{"tool"})
)

// ObserveLLMRequest records one chat call outcome ("ok" or "error").
func ObserveLLMRequest(outcome string) {
	llmRequests.WithLabelValues(outcome).Inc()
}

// AddTokens records token consumption for one chat call.
func AddTokens(input, output int) {
	tokens.WithLabelValues("input").Add(float64(input))
	tokens.WithLabelValues("output").Add(float64(output))
}

// ObserveTask records one task outcome ("succeeded", "failed", "aborted").
func ObserveTask(outcome string) {
	tasks.WithLabelValues(outcome).Inc()
}

// ObserveTool records one tool invocation.
func ObserveTool(name string) {
	toolExecutions.WithLabelValues(name).Inc()
}
