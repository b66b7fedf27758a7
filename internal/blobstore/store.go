package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable is returned by Upload when the circuit breaker is
// open; callers must not contact the provider in this case.
var ErrStorageUnavailable = errors.New("blobstore: storage_unavailable")

// DefaultSignedURLTTL is the 7-day default expiry for signed download URLs.
const DefaultSignedURLTTL = 7 * 24 * time.Hour

// ObjectRef describes one listed object.
type ObjectRef struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Store is the full BlobStore contract (§4.2).
type Store interface {
	// Upload writes bytes to path with the given content type, overwriting
	// any existing object at that path. Two uploads of distinct payloads to
	// the same path must leave the second as the visible final object.
	Upload(ctx context.Context, path string, body []byte, contentType string) error

	// SignedURL returns a time-limited, download-disposed URL for path.
	SignedURL(ctx context.Context, path string, ttl time.Duration, downloadFilename string) (string, error)

	// Delete removes the object at path. Idempotent: deleting a missing
	// object is not an error.
	Delete(ctx context.Context, path string) error

	// List returns up to limit objects under prefix.
	List(ctx context.Context, prefix string, limit int) ([]ObjectRef, error)

	// DeleteOlderThan deletes every object last modified before cutoff and
	// returns the count deleted; individual failures are best-effort.
	DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error)
}
