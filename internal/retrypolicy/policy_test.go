package retrypolicy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffScheduleStartsAtBase(t *testing.T) {
	d := Default.backoff(0)
	require.InDelta(t, Default.Base.Seconds(), d.Seconds(), 1.0)
}

func TestBackoffScheduleDoublesEachRetry(t *testing.T) {
	require.InDelta(t, 10.0, Default.backoff(0).Seconds(), 1.0)
	require.InDelta(t, 20.0, Default.backoff(1).Seconds(), 1.0)
	require.InDelta(t, 40.0, Default.backoff(2).Seconds(), 1.0)
}

func TestBackoffScheduleSaturatesAtCap(t *testing.T) {
	d := Default.backoff(10)
	require.InDelta(t, Default.Cap.Seconds(), d.Seconds(), 1.0)
}

func TestClassifyTransientNetworkIsRetryable(t *testing.T) {
	dec := Default.Classify(errors.New("dial tcp: ECONNREFUSED"), 0)
	require.True(t, dec.ShouldRetry)
	require.Equal(t, CategoryTransientNetwork, dec.Classification.Category)
	require.InDelta(t, 10.0, dec.RetryDelay.Seconds(), 1.0)
}

func TestClassifyStorageUnavailableIsRetryable(t *testing.T) {
	dec := Default.Classify(errors.New("upload failed: storage_unavailable"), 1)
	require.True(t, dec.ShouldRetry)
	require.Equal(t, CategoryTransientStorage, dec.Classification.Category)
	require.InDelta(t, 20.0, dec.RetryDelay.Seconds(), 1.0)
}

func TestClassifyRenderDeadlineIsRetryable(t *testing.T) {
	dec := Default.Classify(errors.New("render output: render: context deadline exceeded"), 0)
	require.True(t, dec.ShouldRetry)
	require.Equal(t, CategoryTransientRender, dec.Classification.Category)
}

func TestClassifySnapshotInvalidIsPermanent(t *testing.T) {
	dec := Default.Classify(errors.New("snapshot_invalid: missing template_id"), 0)
	require.False(t, dec.ShouldRetry)
	require.Equal(t, CategoryPermanentValidation, dec.Classification.Category)
}

func TestClassifyStopsRetryingAtMaxRetries(t *testing.T) {
	dec := Default.Classify(errors.New("ETIMEDOUT"), Default.MaxRetries)
	require.False(t, dec.ShouldRetry, "retry_count already at MAX_RETRIES must terminate")
	require.True(t, dec.Classification.Category.Retryable(), "category itself is still transient")
}

func TestClassifyUnrecognizedErrorDefaultsToPermanentInput(t *testing.T) {
	dec := Default.Classify(errors.New("something truly unexpected"), 0)
	require.False(t, dec.ShouldRetry)
	require.Equal(t, CategoryPermanentInput, dec.Classification.Category)
}

func TestDefaultPolicyConstants(t *testing.T) {
	require.Equal(t, 10*time.Second, Default.Base)
	require.Equal(t, 300*time.Second, Default.Cap)
	require.Equal(t, 3, Default.MaxRetries)
}
