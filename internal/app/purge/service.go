// Package purge soft-deletes scans past their retention age. Runs are
// resumable: the keyset cursor is checkpointed after every batch, so a run
// cut short by a deploy or the per-run cap picks up where it stopped.
package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
	"github.com/openctemio/ingest/pkg/pagination"
)

// CheckpointStore persists the purge cursor between runs.
type CheckpointStore interface {
	Load(ctx context.Context) (scan.Checkpoint, error)
	Save(ctx context.Context, cp scan.Checkpoint) error
	Clear(ctx context.Context) error
}

// Config bounds one purge run.
type Config struct {
	// MaxAge is the retention period; scans created earlier are purged.
	MaxAge time.Duration
	// BatchSize is the number of scans listed and purged per batch.
	BatchSize int
	// MaxPerRun caps the scans purged in one run. The remainder is left
	// for the next scheduled run, which resumes from the checkpoint.
	MaxPerRun int
}

// PurgeScansService soft-deletes scans older than the retention period.
type PurgeScansService struct {
	scans       scan.Repository
	checkpoints CheckpointStore
	cfg         Config
	logger      *logger.Logger
}

// NewPurgeScansService creates the purge service.
func NewPurgeScansService(scans scan.Repository, checkpoints CheckpointStore, cfg Config, log *logger.Logger) (*PurgeScansService, error) {
	if cfg.MaxAge <= 0 || cfg.BatchSize <= 0 || cfg.MaxPerRun <= 0 {
		return nil, shared.NewDomainError("CONFIGURATION", "purge bounds must be positive", shared.ErrConfiguration)
	}
	return &PurgeScansService{
		scans:       scans,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      log.With("component", "purge_scans"),
	}, nil
}

// Execute runs one purge pass. The checkpoint is saved after every batch
// and cleared only when the table is exhausted; hitting the per-run cap
// leaves it in place so the next run resumes instead of rescanning.
func (s *PurgeScansService) Execute(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.PurgeRunDuration.Observe(time.Since(start).Seconds())
	}()

	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load purge checkpoint: %w", err)
	}
	if !cp.IsZero() {
		metrics.PurgeRunsResumedTotal.Inc()
		s.logger.Info("resuming purge from checkpoint", "cursor_created_at", cp.CreatedAt)
	}

	cutoff := start.UTC().Add(-s.cfg.MaxAge)
	cursor := pagination.Keyset{CreatedAt: cp.CreatedAt, ID: cp.ID}
	purged := 0

	for purged < s.cfg.MaxPerRun {
		batchSize := min(s.cfg.BatchSize, s.cfg.MaxPerRun-purged)
		rows, err := s.scans.ListStaleBatch(ctx, cutoff, cursor, batchSize)
		if err != nil {
			return fmt.Errorf("list stale scans: %w", err)
		}
		if len(rows) == 0 {
			if err := s.checkpoints.Clear(ctx); err != nil {
				return fmt.Errorf("clear purge checkpoint: %w", err)
			}
			s.logger.Info("purge run completed", "purged", purged)
			return nil
		}

		ids := make([]shared.ID, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		n, err := s.scans.MarkPurged(ctx, ids)
		if err != nil {
			return fmt.Errorf("mark scans purged: %w", err)
		}
		purged += int(n)
		metrics.PurgedScansTotal.Add(float64(n))

		last := rows[len(rows)-1]
		cursor = cursor.Advance(last.CreatedAt, last.ID)
		if err := s.checkpoints.Save(ctx, scan.Checkpoint{CreatedAt: cursor.CreatedAt, ID: cursor.ID}); err != nil {
			return fmt.Errorf("save purge checkpoint: %w", err)
		}
	}

	s.logger.Info("purge run hit per-run cap", "purged", purged, "cap", s.cfg.MaxPerRun)
	return nil
}
