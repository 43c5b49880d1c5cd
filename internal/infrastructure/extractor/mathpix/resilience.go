package mathpix

import (
	"context"
	"errors"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
)

// classifyTransferError covers poll and fetch. A remote conversion
// verdict is final, so ErrExtractionFailed never retries and never
// feeds the breaker; transport trouble does both.
func classifyTransferError(err error) resilience.ErrorClassification {
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
	if domain.IsKind(err, domain.ErrExtractionFailed) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}

// classifySubmitError keeps submits single-shot. A retried submit would
// start a second conversion job for the same document, so nothing is
// retryable; transport failures still count against the breaker.
func classifySubmitError(err error) resilience.ErrorClassification {
	class := classifyTransferError(err)
	class.Retryable = false
	return class
}
