package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClaimPriorityFIFO(t *testing.T) {
	m := NewMemory()
	low := m.Seed(Job{Priority: 10, CreatedAt: time.Now().Add(-time.Minute)})
	high := m.Seed(Job{Priority: 100, CreatedAt: time.Now().Add(-time.Second)})
	older := m.Seed(Job{Priority: 100, CreatedAt: time.Now().Add(-time.Hour)})

	ctx := context.Background()
	first, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)
	require.Equal(t, older.ID, first.ID, "equal priority ties break FIFO by created_at")

	second, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)
	require.Equal(t, high.ID, second.ID)

	third, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)
	require.Equal(t, low.ID, third.ID)
}

func TestClaimRespectsAvailableAt(t *testing.T) {
	m := NewMemory()
	m.Seed(Job{Priority: 100, AvailableAt: time.Now().Add(time.Hour)})

	_, err := m.Claim(context.Background(), FamilyExport, "w1")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestCompleteRequiresProcessing(t *testing.T) {
	m := NewMemory()
	j := m.Seed(Job{State: StatePending})

	err := m.Complete(context.Background(), j.ID, "path", "url")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorageBeforeCompleteOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j := m.Seed(Job{Priority: 100})

	claimed, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)
	require.Equal(t, j.ID, claimed.ID)

	require.NoError(t, m.SetProcessingFields(ctx, j.ID, "owner/exports/pdf/"+j.ID+".pdf"))
	require.NoError(t, m.Complete(ctx, j.ID, "owner/exports/pdf/"+j.ID+".pdf", "https://signed"))

	rows, err := m.Peek(ctx, StateCompleted, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].StoragePath)
	require.NotEmpty(t, rows[0].ArtifactURL)
	require.NotNil(t, rows[0].CompletedAt)
}

func TestResetWithBackoffIncrementsRetryCount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j := m.Seed(Job{Priority: 100})
	_, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)

	require.NoError(t, m.ResetWithBackoff(ctx, j.ID, 10*time.Second, "ETIMEDOUT"))

	rows, err := m.Peek(ctx, StatePending, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].RetryCount)
	require.True(t, rows[0].AvailableAt.After(time.Now()))
}

func TestResetImmediateDoesNotBumpRetryCount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j := m.Seed(Job{Priority: 100, RetryCount: 1})
	_, err := m.Claim(ctx, FamilyExport, "w1")
	require.NoError(t, err)

	require.NoError(t, m.ResetImmediate(ctx, j.ID))

	rows, err := m.Peek(ctx, StatePending, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].RetryCount)
	require.False(t, rows[0].AvailableAt.After(time.Now().Add(time.Second)))
}

func TestFindStaleAndResetAllStale(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	stale := m.Seed(Job{Priority: 100})
	fresh := m.Seed(Job{Priority: 90})

	_, err := m.Claim(ctx, FamilyExport, "w1") // claims stale (higher priority)
	require.NoError(t, err)
	_, err = m.Claim(ctx, FamilyExport, "w2")
	require.NoError(t, err)

	// backdate stale's started_at beyond the threshold
	m.mu.Lock()
	old := time.Now().Add(-10 * time.Minute)
	m.jobs[stale.ID].StartedAt = &old
	m.mu.Unlock()

	ids, err := m.FindStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{stale.ID}, ids)

	n, err := m.ResetAllStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := m.Peek(ctx, StatePending, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, stale.ID, rows[0].ID)

	_ = fresh
}

func TestRetentionDeletesOnlyOldCompleted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	old := m.Seed(Job{State: StateCompleted, CreatedAt: cutoff.Add(-time.Hour), StoragePath: "p1"})
	recent := m.Seed(Job{State: StateCompleted, CreatedAt: time.Now()})

	refs, err := m.FindOldCompleted(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, old.ID, refs[0].ID)

	n, err := m.DeleteOldCompleted(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := m.Peek(ctx, StateCompleted, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, recent.ID, rows[0].ID)
}

func TestOwnerCounters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Seed(Job{OwnerID: "owner-1", State: StatePending})
	m.Seed(Job{OwnerID: "owner-1", State: StateProcessing})
	m.Seed(Job{OwnerID: "owner-2", State: StatePending})

	active, err := m.CountActiveForOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), active)

	recent, err := m.CountRecentForOwner(ctx, "owner-1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(2), recent)
}
