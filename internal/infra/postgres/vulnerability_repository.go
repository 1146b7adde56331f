package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// VulnerabilityRepository implements vulnerability.Repository using
// PostgreSQL.
type VulnerabilityRepository struct {
	db *DB
}

// NewVulnerabilityRepository creates a new VulnerabilityRepository.
func NewVulnerabilityRepository(db *DB) *VulnerabilityRepository {
	return &VulnerabilityRepository{db: db}
}

// IDsByLocation returns vulnerability ids recorded for a package at a file
// path within a project.
func (r *VulnerabilityRepository) IDsByLocation(ctx context.Context, projectID shared.ID, path, packageName, version string) ([]shared.ID, error) {
	query := `
		SELECT id
		FROM vulnerabilities
		WHERE project_id = $1
		  AND location_path = $2
		  AND package_name = $3
		  AND package_version = $4
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String(), path, packageName, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities by location: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("failed to scan vulnerability id: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vulnerability ids: %w", err)
	}

	return ids, nil
}
