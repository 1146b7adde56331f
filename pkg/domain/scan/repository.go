package scan

import (
	"context"
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/pagination"
)

// StaleRow is the minimal projection used by the purge job.
type StaleRow struct {
	ID        shared.ID
	CreatedAt time.Time
}

// Repository defines the interface for scan persistence.
type Repository interface {
	// Create persists a scan. A duplicate (pipeline, report type,
	// artifact) tuple returns shared.ErrAlreadyExists.
	Create(ctx context.Context, scan *Scan) error

	// GetByPipelineAndArtifact retrieves the scan for an artifact, if any.
	GetByPipelineAndArtifact(ctx context.Context, pipelineID shared.ID, reportType ReportType, artifactKey string) (*Scan, error)

	// HasFindings reports whether any findings are stored against the scan.
	HasFindings(ctx context.Context, scanID shared.ID) (bool, error)

	// UpdateStatus applies a status transition.
	UpdateStatus(ctx context.Context, scanID shared.ID, status Status) error

	// ListStaleBatch returns up to limit scans created before cutoff and
	// not yet purged, in (created_at, id) keyset order after the cursor.
	ListStaleBatch(ctx context.Context, cutoff time.Time, cursor pagination.Keyset, limit int) ([]StaleRow, error)

	// MarkPurged soft-deletes the given scans by setting status=purged.
	// Returns the number of rows transitioned.
	MarkPurged(ctx context.Context, ids []shared.ID) (int64, error)
}
