package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/blobstore"
	"github.com/tablecraft/export-worker/internal/jobstore"
	"github.com/tablecraft/export-worker/internal/renderer"
	"github.com/tablecraft/export-worker/internal/renderpool"
	"github.com/tablecraft/export-worker/internal/retrypolicy"
)

type fakeBlobStore struct {
	uploadErr error
	signErr   error
	uploaded  map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploaded: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(_ context.Context, path string, body []byte, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[path] = body
	return nil
}

func (f *fakeBlobStore) SignedURL(_ context.Context, path string, _ time.Duration, _ string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://cdn.example.com/" + path, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, _ string) error { return nil }
func (f *fakeBlobStore) List(_ context.Context, _ string, _ int) ([]blobstore.ObjectRef, error) {
	return nil, nil
}
func (f *fakeBlobStore) DeleteOlderThan(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

var _ blobstore.Store = (*fakeBlobStore)(nil)

type fakeRenderPool struct {
	output []byte
	err    error
}

func (f *fakeRenderPool) Render(_ context.Context, _ string, _ renderpool.RenderOpts) ([]byte, error) {
	return f.output, f.err
}

type fakeTemplateRenderer struct {
	doc renderer.Document
	err error
}

func (f *fakeTemplateRenderer) Render(_ jobstore.Snapshot) (renderer.Document, error) {
	return f.doc, f.err
}

type fakeNotifier struct {
	completions int
	failures    int
}

func (f *fakeNotifier) SendCompletion(_ context.Context, _ *jobstore.Job) { f.completions++ }
func (f *fakeNotifier) SendFailure(_ context.Context, _ *jobstore.Job, _ string) { f.failures++ }

func validJobWithSnapshot(t *testing.T) *jobstore.Job {
	t.Helper()
	snap := jobstore.Snapshot{
		TemplateID:        "tpl-1",
		TemplateVersion:   "v1",
		TemplateName:      "Classic",
		MenuData:          jobstore.MenuData{ID: "menu-1", Name: "Dinner", Items: []json.RawMessage{[]byte(`{"name":"Soup"}`)}},
		ExportOptions:     jobstore.ExportOptions{Format: "A4"},
		SnapshotCreatedAt: time.Now(),
		SnapshotVersion:   "1",
	}
	snapBytes, err := json.Marshal(snap)
	require.NoError(t, err)
	meta, err := json.Marshal(jobstore.Metadata{RenderSnapshot: snapBytes})
	require.NoError(t, err)
	return &jobstore.Job{
		ID:       "job-1",
		OwnerID:  "owner-1",
		Kind:     jobstore.KindPDF,
		State:    jobstore.StateProcessing,
		Metadata: meta,
	}
}

func newTestProcessor(t *testing.T, store jobstore.Store, blobs *fakeBlobStore, pool *fakeRenderPool, notify *fakeNotifier) *Processor {
	t.Helper()
	tmplRenderer := &fakeTemplateRenderer{doc: renderer.Document{HTML: []byte("<html></html>"), ContentType: "text/html"}}
	return New(store, blobs, pool, tmplRenderer, notify, retrypolicy.Default, zap.NewNop())
}

func TestProcessHappyPathCompletesAndNotifiesOnce(t *testing.T) {
	store := jobstore.NewMemory()
	job := validJobWithSnapshot(t)
	store.Seed(*job)

	pdf := append([]byte("%PDF-1.7\n"), make([]byte, 2048)...)
	blobs := newFakeBlobStore()
	notify := &fakeNotifier{}
	p := newTestProcessor(t, store, blobs, &fakeRenderPool{output: pdf}, notify)

	p.Process(context.Background(), job)

	got, err := store.Peek(context.Background(), jobstore.StateCompleted, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "owner-1/exports/pdf/job-1.pdf", got[0].StoragePath)
	require.Equal(t, 1, notify.completions)
	require.Equal(t, 0, notify.failures)
}

func TestProcessInvalidOutputFailsTerminalNoRetry(t *testing.T) {
	store := jobstore.NewMemory()
	job := validJobWithSnapshot(t)
	store.Seed(*job)

	blobs := newFakeBlobStore()
	notify := &fakeNotifier{}
	p := newTestProcessor(t, store, blobs, &fakeRenderPool{output: []byte("not a pdf")}, notify)

	p.Process(context.Background(), job)

	got, err := store.Peek(context.Background(), jobstore.StateFailed, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, notify.failures)
	require.Empty(t, blobs.uploaded)
}

func TestProcessTransientUploadErrorRetriesWithoutEmail(t *testing.T) {
	store := jobstore.NewMemory()
	job := validJobWithSnapshot(t)
	store.Seed(*job)

	pdf := append([]byte("%PDF-1.7\n"), make([]byte, 2048)...)
	blobs := newFakeBlobStore()
	blobs.uploadErr = errors.New("upload failed: storage_unavailable")
	notify := &fakeNotifier{}
	p := newTestProcessor(t, store, blobs, &fakeRenderPool{output: pdf}, notify)

	p.Process(context.Background(), job)

	got, err := store.Peek(context.Background(), jobstore.StatePending, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, got[0].RetryCount)
	require.Equal(t, 0, notify.completions)
	require.Equal(t, 0, notify.failures)
}

func TestProcessTerminatesAfterMaxRetries(t *testing.T) {
	store := jobstore.NewMemory()
	job := validJobWithSnapshot(t)
	job.RetryCount = retrypolicy.Default.MaxRetries
	store.Seed(*job)

	blobs := newFakeBlobStore()
	blobs.uploadErr = errors.New("ETIMEDOUT")
	notify := &fakeNotifier{}
	pdf := append([]byte("%PDF-1.7\n"), make([]byte, 2048)...)
	p := newTestProcessor(t, store, blobs, &fakeRenderPool{output: pdf}, notify)

	p.Process(context.Background(), job)

	got, err := store.Peek(context.Background(), jobstore.StateFailed, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, notify.failures)
}

func TestProcessMissingSnapshotIsPermanentFailure(t *testing.T) {
	store := jobstore.NewMemory()
	job := &jobstore.Job{ID: "job-2", OwnerID: "owner-1", Kind: jobstore.KindPDF, State: jobstore.StateProcessing, Metadata: []byte(`{}`)}
	store.Seed(*job)

	notify := &fakeNotifier{}
	p := newTestProcessor(t, store, newFakeBlobStore(), &fakeRenderPool{}, notify)

	p.Process(context.Background(), job)

	got, err := store.Peek(context.Background(), jobstore.StateFailed, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, notify.failures)
}
