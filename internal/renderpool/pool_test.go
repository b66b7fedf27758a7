package renderpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestAllowedPermitsDataURLs(t *testing.T) {
	require.True(t, requestAllowed("data:image/png;base64,abcd", nil))
}

func TestRequestAllowedBlocksFileURLsUnconditionally(t *testing.T) {
	require.False(t, requestAllowed("file:///etc/passwd", []string{"example.com"}))
	require.False(t, requestAllowed("FILE:///etc/passwd", []string{"example.com"}))
}

func TestRequestAllowedMatchesConfiguredSuffix(t *testing.T) {
	require.True(t, requestAllowed("https://assets.blob.example.com/logo.png", []string{"example.com"}))
	require.True(t, requestAllowed("https://example.com/logo.png", []string{"example.com"}))
}

func TestRequestAllowedBlocksUnlistedOrigins(t *testing.T) {
	require.False(t, requestAllowed("https://evil.com/x.png", []string{"example.com"}))
}

func TestRequestAllowedIsClosedByDefault(t *testing.T) {
	require.False(t, requestAllowed("https://anything.test/x.png", nil))
}

func TestAcquireReleaseRespectsCapacity(t *testing.T) {
	p := New(Options{Capacity: 2})
	defer p.Close()

	require.NoError(t, p.acquire(context.Background()))
	require.NoError(t, p.acquire(context.Background()))
	require.Equal(t, Stats{Capacity: 2, InUse: 2, Available: 0}, p.Stats())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.acquire(ctx)
	require.Error(t, err, "a third acquire must block until a slot frees")

	p.release()
	require.Equal(t, Stats{Capacity: 2, InUse: 1, Available: 1}, p.Stats())
	p.release()
}
