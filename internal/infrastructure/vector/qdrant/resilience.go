package qdrant

import (
	"context"
	"errors"
	"net/http"

	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
)

// classifyQdrantError decides retry and breaker accounting for one call.
// Throttling and server-side failures retry and count against the
// breaker; other 4xx responses are the caller's problem and do neither.
func classifyQdrantError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500 {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	// No HTTP status means the request never completed.
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}
