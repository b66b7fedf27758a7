package blobstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathDeterministic(t *testing.T) {
	p1 := Path("owner-1", "pdf", "job-1")
	p2 := Path("owner-1", "pdf", "job-1")
	require.Equal(t, p1, p2)
	require.Equal(t, "owner-1/exports/pdf/job-1.pdf", p1)
}

func TestPathExtensionByKind(t *testing.T) {
	require.Equal(t, "o/exports/pdf/j.pdf", Path("o", "pdf", "j"))
	require.Equal(t, "o/exports/image/j.png", Path("o", "image", "j"))
}
