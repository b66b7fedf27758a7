package blobstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentDispositionDefaultsToAttachment(t *testing.T) {
	require.Equal(t, "attachment", contentDisposition(""))
	require.Equal(t, `attachment; filename="menu.pdf"`, contentDisposition("menu.pdf"))
}

func TestRewriteHostSwapsSchemeAndHost(t *testing.T) {
	signed := "http://minio.internal:9000/bucket/key?X-Amz-Signature=abc"
	out := rewriteHost(signed, "https://cdn.example.com")
	require.Equal(t, "https://cdn.example.com/bucket/key?X-Amz-Signature=abc", out)
}

func TestRewriteHostFallsBackOnInvalidBase(t *testing.T) {
	signed := "http://minio.internal:9000/bucket/key"
	out := rewriteHost(signed, "://not a url")
	require.Equal(t, signed, out)
}
