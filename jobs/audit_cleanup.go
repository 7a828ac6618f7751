package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ledgerkite/ledgerkite/internal/jobs"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// AuditCleaner prunes audit entries past the retention window.
type AuditCleaner struct {
	audit     *shared.AuditLogger
	retention time.Duration
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewAuditCleaner constructs an AuditCleaner with a default retention.
func NewAuditCleaner(audit *shared.AuditLogger, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *AuditCleaner {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditCleaner{audit: audit, retention: retention, metrics: metrics, logger: logger}
}

// HandleTask processes TaskAuditCleanup tasks.
func (c *AuditCleaner) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload AuditCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = c.retention
	}
	tracker := c.metrics.Track("audit_cleanup")
	removed, err := c.audit.Cleanup(ctx, retention)
	if err != nil {
		return tracker.End(err)
	}
	c.logger.Info("audit cleanup", slog.Int64("removed", removed))
	return tracker.End(nil)
}
