package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DepthSource reports the current pending-job count for a family.
type DepthSource func(ctx context.Context, family string) (int64, error)

// StartQueueDepthUpdater periodically samples depth for each family and
// publishes it to the QueueDepth gauge, logging (not failing) on error.
func StartQueueDepthUpdater(ctx context.Context, interval time.Duration, families []string, sample DepthSource, log *zap.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, family := range families {
					n, err := sample(ctx, family)
					if err != nil {
						log.Debug("queue depth sample error", zap.String("family", family), zap.Error(err))
						continue
					}
					QueueDepth.WithLabelValues(family).Set(float64(n))
				}
			}
		}
	}()
}
