package observability

import (
	"context"
	"time"
)

// NoopMetrics discards every measurement. It is the recorder callers
// see before Initialize runs or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int) {}

func (NoopMetrics) RecordChatRequest(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordDecision(context.Context, string, float64, bool) {}

func (NoopMetrics) RecordLLMCall(context.Context, string, string, time.Duration, int, int, error) {}

func (NoopMetrics) RecordToolExecution(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordAgentCall(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordRetrieval(context.Context, string, int, time.Duration, error) {}

func (NoopMetrics) RecordCacheLookup(context.Context, string, bool) {}

func (NoopMetrics) RecordCircuitTransition(context.Context, string, string) {}
