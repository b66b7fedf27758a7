// Package supervisor owns the replica's startup sequence, the periodic
// sweep tickers, the health/metrics surface, and cooperative shutdown. It
// is the top-level composition root the Poller and Processor run under.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/blobstore"
	"github.com/tablecraft/export-worker/internal/config"
	"github.com/tablecraft/export-worker/internal/jobstore"
	"github.com/tablecraft/export-worker/internal/obs"
	"github.com/tablecraft/export-worker/internal/poller"
	"github.com/tablecraft/export-worker/internal/renderpool"
)

// Supervisor wires every long-lived collaborator together and runs them
// until a shutdown is requested.
type Supervisor struct {
	cfg    *config.Config
	log    *zap.Logger
	store  jobstore.Store
	blobs  blobstore.Store
	pool   *renderpool.Pool
	poller *poller.Poller
}

// New assembles a Supervisor from already-initialized collaborators; callers
// build JobStore/BlobStore/RenderPool/Poller via their own constructors
// (see cmd/export-worker) so that Supervisor stays free of concrete driver
// choices.
func New(cfg *config.Config, log *zap.Logger, store jobstore.Store, blobs blobstore.Store, pool *renderpool.Pool, p *poller.Poller) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		log:    log,
		store:  store,
		blobs:  blobs,
		pool:   pool,
		poller: p,
	}
}

// Run starts the health/metrics servers, the sweep tickers, and the Poller,
// blocking until ctx is cancelled (the process's signal handler owns ctx).
// It returns the process exit code per spec §4.9's shutdown contract.
func (s *Supervisor) Run(ctx context.Context) int {
	healthSrv := obs.StartHealthServer(s.cfg.Observability.HealthPort, s.healthCheckers())
	metricsSrv := obs.StartMetricsServer(s.cfg.Observability.MetricsPort)
	defer func() {
		_ = healthSrv.Close()
		_ = metricsSrv.Close()
	}()

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	defer stopSweeps()
	go s.runStaleSweep(sweepCtx)
	go s.runRetentionSweep(sweepCtx)

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		s.poller.Run(ctx)
	}()

	<-ctx.Done()
	s.log.Info("shutdown_signal_received")

	select {
	case <-pollerDone:
		s.log.Info("poller_drained_cleanly")
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("shutdown_timeout_exceeded", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	}

	s.pool.Close()
	if err := s.store.Close(); err != nil {
		s.log.Error("jobstore_close_failed", zap.Error(err))
		return 1
	}
	return 0
}

func (s *Supervisor) runStaleSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Sweep.StaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStale(ctx)
		}
	}
}

func (s *Supervisor) sweepStale(ctx context.Context) {
	ids, err := s.store.FindStale(ctx, s.cfg.Sweep.StaleThreshold)
	if err != nil {
		s.log.Error("find_stale_failed", zap.Error(err))
		return
	}
	n, err := s.store.ResetAllStale(ctx, s.cfg.Sweep.StaleThreshold)
	if err != nil {
		s.log.Error("reset_all_stale_failed", zap.Error(err))
		return
	}
	obs.StaleRecovered.Add(float64(n))
	for _, id := range ids {
		s.log.Info("stale_job_recovered", zap.String("job_id", id))
	}
}

func (s *Supervisor) runRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Sweep.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepRetention(ctx)
		}
	}
}

func (s *Supervisor) sweepRetention(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.Sweep.RetentionDays) * 24 * time.Hour)
	refs, err := s.store.FindOldCompleted(ctx, cutoff)
	if err != nil {
		s.log.Error("find_old_completed_failed", zap.Error(err))
		return
	}
	for _, ref := range refs {
		if ref.StoragePath == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, ref.StoragePath); err != nil {
			s.log.Warn("retention_blob_delete_failed", zap.String("job_id", ref.ID), zap.Error(err))
		}
	}
	n, err := s.store.DeleteOldCompleted(ctx, cutoff)
	if err != nil {
		s.log.Error("delete_old_completed_failed", zap.Error(err))
		return
	}
	obs.RetentionDeleted.Add(float64(n))
	s.log.Info("retention_sweep_complete", zap.Int("deleted", n))
}

func (s *Supervisor) healthCheckers() obs.HealthCheckers {
	return obs.HealthCheckers{
		Database: func(ctx context.Context) (bool, string) {
			if err := s.store.Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		},
		Storage: func(ctx context.Context) (bool, string) {
			if _, err := s.blobs.List(ctx, "", 1); err != nil {
				return false, err.Error()
			}
			return true, ""
		},
		Render: func(ctx context.Context) (bool, string) {
			if err := s.pool.Probe(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		},
	}
}

// RunCanary runs the RenderPool startup self-test if enabled, returning an
// error that should abort startup on failure (spec's config_fatal path).
func RunCanary(ctx context.Context, cfg *config.Config, pool *renderpool.Pool) error {
	if !cfg.Render.EnableCanary {
		return nil
	}
	if err := pool.Canary(ctx); err != nil {
		obs.CanaryFailures.Inc()
		return fmt.Errorf("startup canary failed: %w", err)
	}
	return nil
}
