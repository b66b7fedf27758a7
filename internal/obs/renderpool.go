package obs

import (
	"context"
	"time"
)

// InUseSource reports the render pool's currently-checked-out slot count.
type InUseSource func() int

// StartRenderPoolUpdater periodically samples render pool utilization and
// publishes it to the RenderPoolInUse gauge, mirroring StartQueueDepthUpdater.
func StartRenderPoolUpdater(ctx context.Context, interval time.Duration, sample InUseSource) {
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
				RenderPoolInUse.Set(float64(sample()))
			}
		}
	}()
}
