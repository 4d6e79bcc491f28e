package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsql_chat_requests_total",
			Help: "Total number of chat pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsql_stage_duration_seconds",
			Help:    "Latency of collaborator-bound chat pipeline stages.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"stage"},
	)
	searchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsql_search_failures_total",
			Help: "Total number of search collaborator failures degraded to empty context.",
		},
	)
	payloadExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsql_payload_extractions_total",
			Help: "Structured payload extraction attempts by result (none, parsed, invalid).",
		},
		[]string{"result"},
	)
	queryDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsql_query_dispatch_total",
			Help: "Query execution dispatches by outcome.",
		},
		[]string{"outcome"},
	)
	formatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsql_format_total",
			Help: "Result formatting turns by outcome.",
		},
		[]string{"outcome"},
	)
	formattedTablesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsql_formatted_tables_total",
			Help: "Total number of markdown tables produced by formatting turns.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		stageDurationSeconds,
		searchFailuresTotal,
		payloadExtractionsTotal,
		queryDispatchTotal,
		formatTotal,
		formattedTablesTotal,
	)
}

func ObserveChatRequest(outcome string) {
	chatRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementSearchFailure() {
	searchFailuresTotal.Inc()
}

func ObservePayloadExtraction(result string) {
	payloadExtractionsTotal.WithLabelValues(result).Inc()
}

func ObserveQueryDispatch(outcome string) {
	queryDispatchTotal.WithLabelValues(outcome).Inc()
}

func ObserveFormat(outcome string, tables int) {
	formatTotal.WithLabelValues(outcome).Inc()
	if tables > 0 {
		formattedTablesTotal.Add(float64(tables))
	}
}
