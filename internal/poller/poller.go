// Package poller runs the single-flight claim/process tick loop: claim one
// job, process it to completion, and immediately tick again; when nothing
// is eligible, sleep a busy or idle interval depending on queue depth.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/jobstore"
	"github.com/tablecraft/export-worker/internal/obs"
)

// Processor is the narrow view of *processor.Processor the Poller depends on.
type Processor interface {
	Process(ctx context.Context, job *jobstore.Job)
}

// Poller ticks claim->process against a fixed family priority order.
type Poller struct {
	store      jobstore.Store
	processor  Processor
	workerID   string
	busy       time.Duration
	idle       time.Duration
	priorities []jobstore.Family
	log        *zap.Logger
}

// Options configures a Poller.
type Options struct {
	WorkerID   string
	Busy       time.Duration
	Idle       time.Duration
	// Priorities is claim order per tick; defaults to [extraction, export]
	// when empty, preserving the source's fixed extraction-first priority.
	Priorities []jobstore.Family
}

func New(store jobstore.Store, processor Processor, opts Options, log *zap.Logger) *Poller {
	priorities := opts.Priorities
	if len(priorities) == 0 {
		priorities = []jobstore.Family{jobstore.FamilyExtraction, jobstore.FamilyExport}
	}
	busy, idle := opts.Busy, opts.Idle
	if busy <= 0 {
		busy = 2 * time.Second
	}
	if idle <= 0 {
		idle = 5 * time.Second
	}
	return &Poller{
		store:      store,
		processor:  processor,
		workerID:   opts.WorkerID,
		busy:       busy,
		idle:       idle,
		priorities: priorities,
		log:        log,
	}
}

// Run blocks ticking until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p.tick(ctx) {
			continue
		}
		if !sleep(ctx, p.sleepInterval(ctx)) {
			return
		}
	}
}

// tick attempts one claim across the priority families; returns true if a
// job was claimed and processed (caller should tick again immediately).
func (p *Poller) tick(ctx context.Context) bool {
	for _, family := range p.priorities {
		job, err := p.store.Claim(ctx, family, p.workerID)
		if err != nil {
			if !errors.Is(err, jobstore.ErrEmpty) {
				p.log.Error("claim_failed", zap.String("family", string(family)), zap.Error(err))
			}
			continue
		}
		obs.JobsClaimed.WithLabelValues(string(family)).Inc()
		p.processor.Process(ctx, job)
		return true
	}
	return false
}

func (p *Poller) sleepInterval(ctx context.Context) time.Duration {
	var depth int64
	for _, family := range p.priorities {
		d, err := p.store.QueueDepth(ctx, family)
		if err != nil {
			p.log.Warn("queue_depth_check_failed", zap.String("family", string(family)), zap.Error(err))
			return p.idle
		}
		depth += d
	}
	if depth > 0 {
		return p.busy
	}
	return p.idle
}

// sleep waits d or returns false early if ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
