// Package processor implements the per-job state machine: resolve the
// frozen snapshot, render it, validate the output, persist the storage path
// before uploading, upload, sign a download URL, complete, and notify —
// in that order, with classification-driven retry on any step's failure.
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/blobstore"
	"github.com/tablecraft/export-worker/internal/jobstore"
	"github.com/tablecraft/export-worker/internal/notifier"
	"github.com/tablecraft/export-worker/internal/obs"
	"github.com/tablecraft/export-worker/internal/outputvalidator"
	"github.com/tablecraft/export-worker/internal/renderer"
	"github.com/tablecraft/export-worker/internal/renderpool"
	"github.com/tablecraft/export-worker/internal/retrypolicy"
	"github.com/tablecraft/export-worker/internal/snapshotresolver"
)

// RenderPool is the narrow view of *renderpool.Pool the Processor depends
// on, so tests can substitute a fake instead of launching real browsers.
type RenderPool interface {
	Render(ctx context.Context, html string, opts renderpool.RenderOpts) ([]byte, error)
}

// Processor wires the collaborators SnapshotResolver -> TemplateRenderer ->
// RenderPool -> OutputValidator -> BlobStore -> JobStore together.
type Processor struct {
	store     jobstore.Store
	blobs     blobstore.Store
	pool      RenderPool
	render    renderer.TemplateRenderer
	notify    notifier.Notifier
	retry     retrypolicy.Policy
	signedTTL time.Duration
	log       *zap.Logger
}

// New constructs a Processor over its collaborators.
func New(store jobstore.Store, blobs blobstore.Store, pool RenderPool, render renderer.TemplateRenderer, notify notifier.Notifier, retry retrypolicy.Policy, log *zap.Logger) *Processor {
	return &Processor{
		store:     store,
		blobs:     blobs,
		pool:      pool,
		render:    render,
		notify:    notify,
		retry:     retry,
		signedTTL: blobstore.DefaultSignedURLTTL,
		log:       log,
	}
}

// Process runs the full sequential contract for one claimed job. It never
// returns an error: every failure path resolves to either a retry reset or
// a terminal fail, both recorded via the job store.
func (p *Processor) Process(ctx context.Context, job *jobstore.Job) {
	ctx, span := obs.StartJobSpan(ctx, "process", job.ID, string(job.Kind))
	defer span.End()

	start := time.Now()
	err := p.run(ctx, job)
	obs.JobProcessingDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	if err == nil {
		obs.SetSpanSuccess(ctx)
		return
	}
	obs.RecordError(ctx, err)
	p.handleFailure(ctx, job, err)
}

func (p *Processor) run(ctx context.Context, job *jobstore.Job) error {
	snap, err := snapshotresolver.Get(job.Metadata)
	if err != nil {
		return fmt.Errorf("resolve snapshot: %w", err)
	}

	doc, err := p.render.Render(snap)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	renderStart := time.Now()
	format := renderpool.FormatPDF
	if job.Kind == jobstore.KindImage {
		format = renderpool.FormatPNG
	}
	width, height := paperDimensions(snap.ExportOptions.Format)
	output, err := p.pool.Render(ctx, string(doc.HTML), renderpool.RenderOpts{
		Format:      format,
		PaperWidth:  width,
		PaperHeight: height,
		Landscape:   snap.ExportOptions.Orientation == "landscape",
	})
	obs.RenderDuration.Observe(time.Since(renderStart).Seconds())
	if err != nil {
		return fmt.Errorf("render output: %w", err)
	}

	var result outputvalidator.Result
	if job.Kind == jobstore.KindImage {
		result = outputvalidator.ValidateImage(output, outputvalidator.FormatPNG)
	} else {
		result = outputvalidator.ValidatePDF(output)
	}
	for _, w := range result.Warnings {
		p.log.Warn("output_validation_warning", zap.String("job_id", job.ID), zap.String("warning", w))
	}
	if !result.OK {
		return fmt.Errorf("invalid output: %v", result.Errors)
	}

	storagePath := blobstore.Path(job.OwnerID, string(job.Kind), job.ID)
	if err := p.store.SetProcessingFields(ctx, job.ID, storagePath); err != nil {
		return fmt.Errorf("persist storage_path: %w", err)
	}

	contentType := "application/pdf"
	if job.Kind == jobstore.KindImage {
		contentType = "image/png"
	}
	uploadStart := time.Now()
	if err := p.blobs.Upload(ctx, storagePath, output, contentType); err != nil {
		p.log.Debug("upload_duration_on_error", zap.Duration("elapsed", time.Since(uploadStart)))
		return fmt.Errorf("upload artifact: %w", err)
	}

	filename := downloadFilename(job, snap)
	signedURL, err := p.blobs.SignedURL(ctx, storagePath, p.signedTTL, filename)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}

	if err := p.store.Complete(ctx, job.ID, storagePath, signedURL); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	job.StoragePath = storagePath
	job.ArtifactURL = signedURL

	obs.JobsCompleted.WithLabelValues(string(job.Kind)).Inc()
	p.notify.SendCompletion(ctx, job)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, job *jobstore.Job, procErr error) {
	decision := p.retry.Classify(procErr, job.RetryCount)
	errKind := string(decision.Classification.Category)

	if decision.ShouldRetry {
		if err := p.store.ResetWithBackoff(ctx, job.ID, decision.RetryDelay, decision.Classification.InternalMessage); err != nil {
			p.log.Error("reset_with_backoff_failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		obs.JobsRetried.WithLabelValues(errKind).Inc()
		p.log.Info("job_retry_scheduled",
			zap.String("job_id", job.ID),
			zap.String("error_kind", errKind),
			zap.Duration("delay", decision.RetryDelay),
		)
		return
	}

	if err := p.store.FailTerminal(ctx, job.ID, decision.Classification.UserMessage); err != nil {
		p.log.Error("fail_terminal_failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	obs.JobsFailed.WithLabelValues(string(job.Kind), errKind).Inc()
	job.ErrorMessage = decision.Classification.UserMessage
	p.notify.SendFailure(ctx, job, decision.Classification.UserMessage)
}

func downloadFilename(job *jobstore.Job, snap jobstore.Snapshot) string {
	name := snap.DisplayName
	if name == "" {
		name = snap.MenuData.Name
	}
	if name == "" {
		name = job.ID
	}
	ext := "pdf"
	if job.Kind == jobstore.KindImage {
		ext = "png"
	}
	return fmt.Sprintf("%s.%s", name, ext)
}

func paperDimensions(format string) (width, height float64) {
	switch format {
	case "Letter":
		return 8.5, 11.0
	default:
		return 8.27, 11.69 // A4
	}
}
