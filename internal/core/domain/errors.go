package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a cache/object miss. Expected; drives fallback
	// paths and is never logged as a failure.
	ErrNotFound = errors.New("not found")

	ErrValidation        = errors.New("invalid input")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrIndexingFailed    = errors.New("indexing failed")
	ErrGenerationFailed  = errors.New("generation failed")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
