package scheduler

import (
	"errors"

	"github.com/matthewjhunter/crier/internal/ai"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/queue"
)

// Category is the pipeline-level class of a failure.
type Category string

const (
	CategoryNone              Category = ""
	CategoryConfiguration     Category = "configuration"
	CategoryGeneration        Category = "generation"
	CategoryPlatformTransient Category = "platform_transient"
	CategoryPlatformRejected  Category = "platform_rejected"
	CategoryValidation        Category = "validation"
)

// Retryable reports whether a later tick may try the same work again.
func (c Category) Retryable() bool {
	return c == CategoryGeneration || c == CategoryPlatformTransient
}

// Classify maps an error from generation, queueing or publishing onto a
// Category. Unknown errors count as transient platform failures.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, queue.ErrInvalid), errors.Is(err, ai.ErrUnknownContentType):
		return CategoryValidation
	case errors.Is(err, ai.ErrGenerationUnavailable),
		errors.Is(err, ai.ErrBlockedContent),
		errors.Is(err, ai.ErrNearDuplicate):
		return CategoryGeneration
	case errors.Is(err, platform.ErrUnknownPlatform):
		return CategoryConfiguration
	}
	switch platform.KindOf(err) {
	case platform.KindCredentialMissing:
		return CategoryConfiguration
	case platform.KindRejected:
		return CategoryPlatformRejected
	default:
		return CategoryPlatformTransient
	}
}
