package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/openctemio/ingest/pkg/domain/finding"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// FindingRepository implements finding.Repository using PostgreSQL.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// InsertBatch inserts findings under their natural uuid key. Rows whose uuid
// already exists are left untouched; findings are immutable once stored.
// Returns the number of rows actually written.
func (r *FindingRepository) InsertBatch(ctx context.Context, findings []*finding.Finding) (int, error) {
	if len(findings) == 0 {
		return 0, nil
	}

	const cols = 9
	args := make([]any, 0, len(findings)*cols)
	for _, f := range findings {
		data, err := toJSONB(f.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal finding data: %w", err)
		}
		args = append(args,
			f.UUID,
			nullString(f.OverriddenUUID),
			f.ScanID.String(),
			nullString(f.ScannerID),
			string(f.Severity),
			string(f.State),
			f.Deduplicated,
			data,
			f.CreatedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO findings (
			uuid, overridden_uuid, scan_id, scanner_id, severity,
			state, deduplicated, data, created_at
		)
		VALUES %s
		ON CONFLICT (uuid) DO NOTHING
	`, valuesPlaceholders(len(findings), cols))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert findings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// ExistingUUIDs returns the subset of uuids already stored.
func (r *FindingRepository) ExistingUUIDs(ctx context.Context, uuids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(uuids) == 0 {
		return existing, nil
	}

	query := `SELECT uuid FROM findings WHERE uuid = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(uuids))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing uuids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan uuid: %w", err)
		}
		existing[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate uuids: %w", err)
	}

	return existing, nil
}

// CountByScan returns the number of findings stored against a scan.
func (r *FindingRepository) CountByScan(ctx context.Context, scanID shared.ID) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM findings WHERE scan_id = $1`
	if err := r.db.QueryRowContext(ctx, query, scanID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count findings: %w", err)
	}
	return count, nil
}
