// Package clock provides the worker's time and identity seams: a
// replaceable Now() for deterministic tests, and the worker-id/job-id
// generators.
package clock

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Clock is a narrow time seam that lets tests substitute a fixed clock. The
// job stores, processor and sweeps call time.Now() directly and do not take
// a Clock.
type Clock interface {
	Now() time.Time
}

type real struct{}

func (real) Now() time.Time { return time.Now() }

// Real is the production clock.
var Real Clock = real{}

// Fixed is a test clock that always returns the same instant.
type Fixed struct{ At time.Time }

func (f Fixed) Now() time.Time { return f.At }

// WorkerID builds the default opaque worker identifier, "worker-{pid}", per
// the deployment default; callers may override it entirely via
// configuration.
func WorkerID() string {
	return fmt.Sprintf("worker-%d", os.Getpid())
}

// NewJobID mints a new opaque job identifier.
func NewJobID() string {
	return uuid.NewString()
}
