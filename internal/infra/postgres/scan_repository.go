package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/pagination"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create persists a scan record.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	query := `
		INSERT INTO scans (
			id, project_id, pipeline_id, report_type, scanner_id,
			artifact_key, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID.String(),
		s.ProjectID.String(),
		s.PipelineID.String(),
		string(s.ReportType),
		nullString(s.ScannerID),
		s.ArtifactKey,
		string(s.Status),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("scan for pipeline %s artifact %s: %w",
				s.PipelineID, s.ArtifactKey, shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create scan: %w", err)
	}

	return nil
}

// GetByPipelineAndArtifact retrieves the scan stored for an artifact.
func (r *ScanRepository) GetByPipelineAndArtifact(ctx context.Context, pipelineID shared.ID, reportType scan.ReportType, artifactKey string) (*scan.Scan, error) {
	query := `
		SELECT id, project_id, pipeline_id, report_type, scanner_id,
		       artifact_key, status, created_at, updated_at
		FROM scans
		WHERE pipeline_id = $1 AND report_type = $2 AND artifact_key = $3
	`

	row := r.db.QueryRowContext(ctx, query, pipelineID.String(), string(reportType), artifactKey)
	s, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan for pipeline %s artifact %s: %w",
			pipelineID, artifactKey, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return s, nil
}

// HasFindings reports whether any findings are stored against the scan.
func (r *ScanRepository) HasFindings(ctx context.Context, scanID shared.ID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM findings WHERE scan_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, scanID.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check scan findings: %w", err)
	}
	return exists, nil
}

// UpdateStatus applies a status transition.
func (r *ScanRepository) UpdateStatus(ctx context.Context, scanID shared.ID, status scan.Status) error {
	query := `UPDATE scans SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, scanID.String(), string(status))
	if err != nil {
		return fmt.Errorf("failed to update scan status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("scan %s: %w", scanID, shared.ErrNotFound)
	}

	return nil
}

// ListStaleBatch returns up to limit unpurged scans older than cutoff, in
// (created_at, id) keyset order after the cursor.
func (r *ScanRepository) ListStaleBatch(ctx context.Context, cutoff time.Time, cursor pagination.Keyset, limit int) ([]scan.StaleRow, error) {
	query := `
		SELECT id, created_at
		FROM scans
		WHERE created_at < $1 AND status <> $2
	`
	args := []any{cutoff, string(scan.StatusPurged)}

	if !cursor.IsZero() {
		query += ` AND (created_at, id) > ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID.String())
	}

	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale scans: %w", err)
	}
	defer rows.Close()

	var stale []scan.StaleRow
	for rows.Next() {
		var idStr string
		var createdAt time.Time
		if err := rows.Scan(&idStr, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stale row: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		stale = append(stale, scan.StaleRow{ID: id, CreatedAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale scans: %w", err)
	}

	return stale, nil
}

// MarkPurged soft-deletes the given scans.
func (r *ScanRepository) MarkPurged(ctx context.Context, ids []shared.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	query := `
		UPDATE scans
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status <> $1
	`

	result, err := r.db.ExecContext(ctx, query, string(scan.StatusPurged), pq.Array(idStrs))
	if err != nil {
		return 0, fmt.Errorf("failed to mark scans purged: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// scanScanRow scans a scans row from a QueryRow result.
func scanScanRow(row *sql.Row) (*scan.Scan, error) {
	var (
		idStr, projectStr, pipelineStr string
		reportType, status             string
		scannerID                      sql.NullString
		artifactKey                    string
		createdAt, updatedAt           time.Time
	)

	err := row.Scan(&idStr, &projectStr, &pipelineStr, &reportType, &scannerID,
		&artifactKey, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, err
	}
	projectID, err := shared.IDFromString(projectStr)
	if err != nil {
		return nil, err
	}
	pipelineID, err := shared.IDFromString(pipelineStr)
	if err != nil {
		return nil, err
	}

	return &scan.Scan{
		ID:          id,
		ProjectID:   projectID,
		PipelineID:  pipelineID,
		ReportType:  scan.ReportType(reportType),
		ScannerID:   nullStringValue(scannerID),
		ArtifactKey: artifactKey,
		Status:      scan.Status(status),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
