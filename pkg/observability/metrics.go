package observability

import (
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds a Prometheus-backed recorder from cfg. It returns
// nil when metrics are disabled. The recorder owns its own registry so
// tests and embedded uses never collide on the default one.
func InitMetrics(cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := provider.Meter(DefaultServiceName)

	name := func(suffix string) string {
		return cfg.Namespace + "_" + suffix
	}

	m := &PrometheusMetrics{
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		provider: provider,
	}

	m.httpDuration, err = meter.Float64Histogram(
		name("http_request_duration_seconds"),
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.httpTotal, err = meter.Int64Counter(
		name("http_requests_total"),
		metric.WithDescription("Total HTTP requests by method, route and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.chatDuration, err = meter.Float64Histogram(
		name("chat_request_duration_seconds"),
		metric.WithDescription("Chat request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat duration histogram: %w", err)
	}

	m.chatTotal, err = meter.Int64Counter(
		name("chat_requests_total"),
		metric.WithDescription("Total chat requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat requests counter: %w", err)
	}

	m.chatErrors, err = meter.Int64Counter(
		name("chat_request_errors_total"),
		metric.WithDescription("Total chat requests that ended in an error response"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat errors counter: %w", err)
	}

	m.decisionTotal, err = meter.Int64Counter(
		name("decisions_total"),
		metric.WithDescription("Total routing decisions by strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.decisionConfidence, err = meter.Float64Histogram(
		name("decision_confidence"),
		metric.WithDescription("Confidence of routing decisions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision confidence histogram: %w", err)
	}

	m.llmDuration, err = meter.Float64Histogram(
		name("llm_request_duration_seconds"),
		metric.WithDescription("LLM attempt duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	m.llmInputTokens, err = meter.Int64Counter(
		name("llm_tokens_input_total"),
		metric.WithDescription("Total input tokens sent to providers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	m.llmOutputTokens, err = meter.Int64Counter(
		name("llm_tokens_output_total"),
		metric.WithDescription("Total output tokens returned by providers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	m.llmErrorsTotal, err = meter.Int64Counter(
		name("llm_errors_total"),
		metric.WithDescription("Total failed LLM attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		name("tool_execution_duration_seconds"),
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	m.toolCallsTotal, err = meter.Int64Counter(
		name("tool_calls_total"),
		metric.WithDescription("Total tool executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	m.toolErrorsTotal, err = meter.Int64Counter(
		name("tool_errors_total"),
		metric.WithDescription("Total failed tool executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	m.agentDuration, err = meter.Float64Histogram(
		name("agent_call_duration_seconds"),
		metric.WithDescription("Agent call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}

	m.agentCallsTotal, err = meter.Int64Counter(
		name("agent_calls_total"),
		metric.WithDescription("Total agent calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent calls counter: %w", err)
	}

	m.agentErrorsTotal, err = meter.Int64Counter(
		name("agent_errors_total"),
		metric.WithDescription("Total failed agent calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}

	m.retrievalDuration, err = meter.Float64Histogram(
		name("retrieval_duration_seconds"),
		metric.WithDescription("Knowledge retrieval duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval duration histogram: %w", err)
	}

	m.retrievalHits, err = meter.Int64Counter(
		name("retrieval_hits_total"),
		metric.WithDescription("Total documents returned by retrieval"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval hits counter: %w", err)
	}

	m.retrievalErrors, err = meter.Int64Counter(
		name("retrieval_errors_total"),
		metric.WithDescription("Total failed retrievals"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval errors counter: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		name("cache_lookups_total"),
		metric.WithDescription("Cache lookups by cache name and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.circuitTransitions, err = meter.Int64Counter(
		name("circuit_transitions_total"),
		metric.WithDescription("Circuit breaker state transitions by provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create circuit transitions counter: %w", err)
	}

	return m, nil
}
