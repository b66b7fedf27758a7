package poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

type recordingProcessor struct {
	processed []string
}

func (r *recordingProcessor) Process(_ context.Context, job *jobstore.Job) {
	r.processed = append(r.processed, job.ID)
}

func TestTickPrioritizesExtractionBeforeExport(t *testing.T) {
	store := jobstore.NewMemory()
	store.Seed(jobstore.Job{ID: "export-1", OwnerID: "o1", Family: jobstore.FamilyExport, Kind: jobstore.KindPDF, State: jobstore.StatePending, Metadata: json.RawMessage(`{}`)})
	store.Seed(jobstore.Job{ID: "extract-1", OwnerID: "o1", Family: jobstore.FamilyExtraction, Kind: jobstore.KindPDF, State: jobstore.StatePending, Metadata: json.RawMessage(`{}`)})

	proc := &recordingProcessor{}
	p := New(store, proc, Options{}, zap.NewNop())

	claimed := p.tick(context.Background())
	require.True(t, claimed)
	require.Equal(t, []string{"extract-1"}, proc.processed, "extraction family must be tried before export")
}

func TestTickReturnsFalseWhenNothingEligible(t *testing.T) {
	store := jobstore.NewMemory()
	proc := &recordingProcessor{}
	p := New(store, proc, Options{}, zap.NewNop())

	claimed := p.tick(context.Background())
	require.False(t, claimed)
	require.Empty(t, proc.processed)
}

func TestTickClaimsAndProcessesEligibleJob(t *testing.T) {
	store := jobstore.NewMemory()
	job := jobstore.Job{ID: "job-1", OwnerID: "o1", Kind: jobstore.KindPDF, Family: jobstore.FamilyExport, State: jobstore.StatePending, Metadata: json.RawMessage(`{}`)}
	store.Seed(job)

	proc := &recordingProcessor{}
	p := New(store, proc, Options{}, zap.NewNop())

	claimed := p.tick(context.Background())
	require.True(t, claimed)
	require.Equal(t, []string{"job-1"}, proc.processed)
}

func TestSleepIntervalIsBusyWhenDepthPositive(t *testing.T) {
	store := jobstore.NewMemory()
	store.Seed(jobstore.Job{ID: "job-1", OwnerID: "o1", Kind: jobstore.KindPDF, Family: jobstore.FamilyExport, State: jobstore.StatePending, Metadata: json.RawMessage(`{}`)})

	p := New(store, &recordingProcessor{}, Options{Busy: time.Second, Idle: 5 * time.Second}, zap.NewNop())
	require.Equal(t, time.Second, p.sleepInterval(context.Background()))
}

func TestSleepIntervalIsIdleWhenDepthZero(t *testing.T) {
	store := jobstore.NewMemory()
	p := New(store, &recordingProcessor{}, Options{Busy: time.Second, Idle: 5 * time.Second}, zap.NewNop())
	require.Equal(t, 5*time.Second, p.sleepInterval(context.Background()))
}
