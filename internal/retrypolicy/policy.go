// Package retrypolicy classifies a processing error into a retryable or
// permanent category and computes the exponential backoff delay for the
// next attempt, generalizing the teacher's fixed power-of-two backoff to
// the BASE*2^retry_count formula with an explicit cap.
package retrypolicy

import (
	"strings"
	"time"
)

// Category is the error classification bucket from the error taxonomy.
type Category string

const (
	CategoryTransientNetwork    Category = "transient_network"
	CategoryTransientStorage    Category = "transient_storage"
	CategoryTransientRender     Category = "transient_render"
	CategoryPermanentValidation Category = "permanent_validation"
	CategoryPermanentInput      Category = "permanent_input"
)

func (c Category) Retryable() bool {
	switch c {
	case CategoryTransientNetwork, CategoryTransientStorage, CategoryTransientRender:
		return true
	default:
		return false
	}
}

// Policy holds the backoff schedule's constants.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Default matches spec's BASE=10s, CAP=300s, MAX_RETRIES=3.
var Default = Policy{Base: 10 * time.Second, Cap: 300 * time.Second, MaxRetries: 3}

// Classification is the result of classifying one error.
type Classification struct {
	Category        Category
	UserMessage     string
	InternalMessage string
}

// Decision is the outcome RetryPolicy hands back to the Processor.
type Decision struct {
	ShouldRetry    bool
	RetryDelay     time.Duration
	Classification Classification
}

var transientNetworkMarkers = []string{
	"econnrefused", "etimedout", "econnreset", "enotfound",
	"socket hang up", "fetch failed", "connection pool exhausted",
}

// Classify inspects err and the job's current retry_count and returns the
// retry decision. retryCount is the count BEFORE this attempt's outcome.
func (p Policy) Classify(err error, retryCount int) Decision {
	cls := classify(err)

	if !cls.Category.Retryable() {
		return Decision{ShouldRetry: false, Classification: cls}
	}
	if retryCount >= p.MaxRetries {
		return Decision{ShouldRetry: false, Classification: cls}
	}
	return Decision{
		ShouldRetry:    true,
		RetryDelay:     p.backoff(retryCount),
		Classification: cls,
	}
}

// backoff computes min(BASE * 2^retryCount, CAP).
func (p Policy) backoff(retryCount int) time.Duration {
	base, ceiling := p.Base, p.Cap
	if base <= 0 {
		base = Default.Base
	}
	if ceiling <= 0 {
		ceiling = Default.Cap
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Guard against overflow for large retry counts; any shift that would
	// exceed the cap saturates to the cap directly.
	if retryCount > 32 {
		return ceiling
	}
	d := base * time.Duration(int64(1)<<uint(retryCount))
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}

// storageUnavailableMsg is the message text of blobstore's
// ErrStorageUnavailable (a tripped blob circuit breaker); it is matched by
// text here rather than imported from blobstore to avoid a dependency cycle.
const storageUnavailableMsg = "storage_unavailable"

func classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryPermanentInput, UserMessage: "unknown error", InternalMessage: "nil error classified"}
	}
	msg := strings.ToLower(err.Error())
	internal := err.Error()

	switch {
	case strings.Contains(msg, "snapshot_invalid"):
		return Classification{
			Category:        CategoryPermanentValidation,
			UserMessage:     "This menu could not be exported because its saved data is incomplete.",
			InternalMessage: internal,
		}
	case strings.Contains(msg, "invalid output"), strings.Contains(msg, "untrusted image url"):
		return Classification{
			Category:        CategoryPermanentValidation,
			UserMessage:     "The export could not be generated correctly. Please try again.",
			InternalMessage: internal,
		}
	case strings.Contains(msg, storageUnavailableMsg):
		return Classification{
			Category:        CategoryTransientStorage,
			UserMessage:     "We're having trouble saving your export right now. We'll keep trying.",
			InternalMessage: internal,
		}
	case strings.Contains(msg, "503"):
		return Classification{
			Category:        CategoryTransientStorage,
			UserMessage:     "We're having trouble saving your export right now. We'll keep trying.",
			InternalMessage: internal,
		}
	case containsAny(msg, transientNetworkMarkers):
		return Classification{
			Category:        CategoryTransientNetwork,
			UserMessage:     "A temporary network issue delayed your export. We'll keep trying.",
			InternalMessage: internal,
		}
	case strings.Contains(msg, "render") && (strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "launch")):
		return Classification{
			Category:        CategoryTransientRender,
			UserMessage:     "Rendering your export took too long. We'll keep trying.",
			InternalMessage: internal,
		}
	case strings.Contains(msg, "malformed") || strings.Contains(msg, "unknown template"):
		return Classification{
			Category:        CategoryPermanentInput,
			UserMessage:     "This export request could not be processed.",
			InternalMessage: internal,
		}
	default:
		return Classification{
			Category:        CategoryPermanentInput,
			UserMessage:     "This export could not be completed.",
			InternalMessage: internal,
		}
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
