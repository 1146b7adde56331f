package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
)

// OccurrenceVulnerabilityRepository implements
// sbom.OccurrenceVulnerabilityRepository using PostgreSQL.
type OccurrenceVulnerabilityRepository struct {
	db *DB
}

// NewOccurrenceVulnerabilityRepository creates a new
// OccurrenceVulnerabilityRepository.
func NewOccurrenceVulnerabilityRepository(db *DB) *OccurrenceVulnerabilityRepository {
	return &OccurrenceVulnerabilityRepository{db: db}
}

// InsertBatch inserts join rows, ignoring pairs already present. Returns the
// number of rows actually written.
func (r *OccurrenceVulnerabilityRepository) InsertBatch(ctx context.Context, links []sbom.OccurrenceVulnerability) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}

	const cols = 2
	args := make([]any, 0, len(links)*cols)
	for _, l := range links {
		args = append(args, l.OccurrenceID.String(), l.VulnerabilityID.String())
	}

	query := fmt.Sprintf(`
		INSERT INTO sbom_occurrences_vulnerabilities (occurrence_id, vulnerability_id)
		VALUES %s
		ON CONFLICT (occurrence_id, vulnerability_id) DO NOTHING
	`, valuesPlaceholders(len(links), cols))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert occurrence vulnerabilities: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
