// Package blobstore is the durable artifact sink: a deterministic path
// scheme, idempotent uploads, signed download URLs, and a circuit breaker
// guarding the upload path against a failing provider.
package blobstore

import "fmt"

// Path returns the deterministic object path for a job's artifact:
// {owner_id}/exports/{kind}/{job_id}.{ext}. Stable across retries and
// replicas — the only idempotency handle the Processor relies on.
func Path(ownerID, kind, jobID string) string {
	return fmt.Sprintf("%s/exports/%s/%s.%s", ownerID, kind, jobID, extFor(kind))
}

func extFor(kind string) string {
	if kind == "pdf" {
		return "pdf"
	}
	return "png"
}
