package cascade

import (
	"context"
	"errors"

	"github.com/stentorlabs/stentor/pkg/llms"
)

// Classify normalizes any attempt error to a failure reason. Adapters
// already classify their own wire failures; this catches everything
// else that can surface between the cascade and the adapter.
func Classify(err error) llms.FailReason {
	var perr *llms.ProviderError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llms.ReasonTimeout
	case errors.Is(err, context.Canceled):
		return llms.ReasonCancelled
	default:
		return llms.ReasonTransport
	}
}

// advancesModel reports whether a failure is specific to the model
// rather than the provider. Such failures try the provider's next
// candidate model; everything else advances the walk to the next
// provider.
func advancesModel(reason llms.FailReason) bool {
	return reason == llms.ReasonModelUnavailable
}
