package jobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an update targets a row that no longer
// exists or is no longer in the expected state (e.g. complete() racing a
// stale-sweep reset).
var ErrNotFound = errors.New("jobstore: row not found or not in expected state")

// ErrEmpty is returned by Claim when no eligible row exists.
var ErrEmpty = errors.New("jobstore: no eligible job")

// Store is the full JobStore contract (§4.1): every method retries
// transient connection failures internally, per the error taxonomy.
type Store interface {
	// Claim atomically selects the highest-priority eligible pending row
	// for the given family, ordered by priority DESC, created_at ASC,
	// skipping locked rows, and transitions it to processing. Returns
	// ErrEmpty if no row is eligible.
	Claim(ctx context.Context, family Family, workerID string) (*Job, error)

	// SetProcessingFields partially updates a processing row's storage_path.
	SetProcessingFields(ctx context.Context, id string, storagePath string) error

	// Complete transitions a processing row to completed. Returns
	// ErrNotFound if the row is no longer processing.
	Complete(ctx context.Context, id string, storagePath, artifactURL string) error

	// FailTerminal transitions a row to failed with a user-facing message.
	FailTerminal(ctx context.Context, id string, userMessage string) error

	// ResetWithBackoff transitions processing -> pending, increments
	// retry_count, and sets available_at = now + delay.
	ResetWithBackoff(ctx context.Context, id string, delay time.Duration, internalMessage string) error

	// ResetImmediate is the stale-sweep's reset: available_at = now, no
	// retry_count bump.
	ResetImmediate(ctx context.Context, id string) error

	// FindStale returns ids of processing rows whose started_at predates
	// the stale threshold.
	FindStale(ctx context.Context, threshold time.Duration) ([]string, error)

	// ResetAllStale applies ResetImmediate to every stale row and returns
	// the count reset.
	ResetAllStale(ctx context.Context, threshold time.Duration) (int, error)

	// QueueDepth counts pending rows with available_at <= now, for the
	// given family.
	QueueDepth(ctx context.Context, family Family) (int64, error)

	// Stats reports aggregate counts for the admin/observability surface.
	Stats(ctx context.Context) (Stats, error)

	// Peek returns up to n rows in the given state, most-recently-created
	// first, for the admin introspection surface.
	Peek(ctx context.Context, state State, n int) ([]Job, error)

	// FindOldCompleted returns completed rows created before the cutoff.
	FindOldCompleted(ctx context.Context, before time.Time) ([]CompletedRef, error)

	// DeleteOldCompleted bulk-deletes completed rows created before the
	// cutoff and returns the count deleted.
	DeleteOldCompleted(ctx context.Context, before time.Time) (int, error)

	// CountRecentForOwner counts jobs created by owner within window.
	CountRecentForOwner(ctx context.Context, ownerID string, window time.Duration) (int64, error)

	// CountActiveForOwner counts pending+processing jobs for owner.
	CountActiveForOwner(ctx context.Context, ownerID string) (int64, error)

	// Ping verifies reachability for the health endpoint's database probe.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
