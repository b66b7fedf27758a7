// Package notifier delivers completion and failure notices to the owning
// account. Delivery is best-effort: a notification failure never changes a
// job's retry decision, mirroring how the source's budgeting alerts are
// logged rather than allowed to affect job processing.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

// Notifier tells the owning account about a terminal job outcome.
// Implementations must not block processing on delivery failure.
type Notifier interface {
	SendCompletion(ctx context.Context, job *jobstore.Job)
	SendFailure(ctx context.Context, job *jobstore.Job, userMessage string)
}

// LoggingNotifier is the default sink: it records the notification as a
// structured log line. A deployment wiring a real email/webhook channel
// wraps this one so delivery is never silently dropped in development.
type LoggingNotifier struct {
	log *zap.Logger
}

func NewLogging(log *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{log: log}
}

func (n *LoggingNotifier) SendCompletion(_ context.Context, job *jobstore.Job) {
	n.log.Info("export_completed_notification",
		zap.String("job_id", job.ID),
		zap.String("owner_id", job.OwnerID),
		zap.String("artifact_url", job.ArtifactURL),
	)
}

func (n *LoggingNotifier) SendFailure(_ context.Context, job *jobstore.Job, userMessage string) {
	n.log.Warn("export_failed_notification",
		zap.String("job_id", job.ID),
		zap.String("owner_id", job.OwnerID),
		zap.String("user_message", userMessage),
	)
}

var _ Notifier = (*LoggingNotifier)(nil)
