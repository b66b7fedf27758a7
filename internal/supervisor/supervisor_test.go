package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/blobstore"
	"github.com/tablecraft/export-worker/internal/config"
	"github.com/tablecraft/export-worker/internal/jobstore"
)

type fakeBlobs struct {
	deleted []string
}

func (f *fakeBlobs) Upload(context.Context, string, []byte, string) error { return nil }
func (f *fakeBlobs) SignedURL(context.Context, string, time.Duration, string) (string, error) {
	return "", nil
}
func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}
func (f *fakeBlobs) List(context.Context, string, int) ([]blobstore.ObjectRef, error) { return nil, nil }
func (f *fakeBlobs) DeleteOlderThan(context.Context, string, time.Time) (int, error)  { return 0, nil }

var _ blobstore.Store = (*fakeBlobs)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Sweep: config.Sweep{
			StaleThreshold:    5 * time.Minute,
			StaleInterval:     5 * time.Minute,
			RetentionInterval: 24 * time.Hour,
			RetentionDays:     30,
		},
	}
}

func TestSweepStaleResetsOrphanedProcessingJobs(t *testing.T) {
	store := jobstore.NewMemory()
	started := time.Now().Add(-10 * time.Minute)
	job := store.Seed(jobstore.Job{State: jobstore.StateProcessing, StartedAt: &started})

	s := &Supervisor{cfg: testConfig(), log: zap.NewNop(), store: store, blobs: &fakeBlobs{}}
	s.sweepStale(context.Background())

	got, err := store.Peek(context.Background(), jobstore.StatePending, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, job.ID, got[0].ID)
	require.Equal(t, 0, got[0].RetryCount, "stale recovery is not a user-observed retry")
}

func TestSweepRetentionDeletesOldCompletedRowsAndBlobs(t *testing.T) {
	store := jobstore.NewMemory()
	old := store.Seed(jobstore.Job{
		State:       jobstore.StateCompleted,
		CreatedAt:   time.Now().Add(-40 * 24 * time.Hour),
		StoragePath: "owner-1/exports/pdf/old.pdf",
	})
	recent := store.Seed(jobstore.Job{State: jobstore.StateCompleted, CreatedAt: time.Now()})

	blobs := &fakeBlobs{}
	s := &Supervisor{cfg: testConfig(), log: zap.NewNop(), store: store, blobs: blobs}
	s.sweepRetention(context.Background())

	require.Contains(t, blobs.deleted, old.StoragePath)

	got, err := store.Peek(context.Background(), jobstore.StateCompleted, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, recent.ID, got[0].ID)
}
