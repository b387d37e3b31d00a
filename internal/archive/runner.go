// Package archive runs the periodic export of the marketplace event log to
// object storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vktrn/marketd/internal/domain"
)

// Runner invokes the archiver on a fixed interval. Each run archives events
// older than the retention window.
type Runner struct {
	archiver  domain.Archiver
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(archiver domain.Archiver, interval, retention time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		archiver:  archiver,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// RunOnce executes a single archive pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.retention)

	count, err := r.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: events before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive: run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("events_archived", count),
	)

	if count > 0 {
		infos, err := r.archiver.Inventory(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "archive: inventory unavailable",
				slog.String("error", err.Error()),
			)
			return nil
		}
		var total int64
		for _, info := range infos {
			total += info.Size
		}
		r.logger.InfoContext(ctx, "archive: inventory",
			slog.Int("batches", len(infos)),
			slog.Int64("bytes", total),
		)
	}
	return nil
}

// Run executes archive passes on the configured interval until the context
// is cancelled. A failed pass is logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "archive: runner started",
		slog.Duration("interval", r.interval),
		slog.Duration("retention", r.retention),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("archive: runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive: run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
