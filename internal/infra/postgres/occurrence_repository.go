package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// OccurrenceRepository implements sbom.OccurrenceRepository using PostgreSQL.
type OccurrenceRepository struct {
	db *DB
}

// NewOccurrenceRepository creates a new OccurrenceRepository.
func NewOccurrenceRepository(db *DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// UpsertBatch writes occurrences keyed by their identity tuple. On conflict
// only traversal ids are refreshed; pipeline_id and commit_sha stay at their
// insert-time values so re-running an old pipeline cannot rewrite which
// pipeline first recorded the occurrence, and updated_at moves only when the
// traversal ids actually changed. Ids come back aligned with the input rows.
func (r *OccurrenceRepository) UpsertBatch(ctx context.Context, occurrences []*sbom.Occurrence) ([]shared.ID, error) {
	if len(occurrences) == 0 {
		return nil, nil
	}

	const cols = 14
	args := make([]any, 0, len(occurrences)*cols)
	for _, o := range occurrences {
		licenses, err := toJSONB(o.Licenses)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal occurrence licenses: %w", err)
		}

		id := o.ID
		if id.IsZero() {
			id = shared.NewID()
		}

		args = append(args,
			id.String(),
			o.ProjectID.String(),
			o.PipelineID.String(),
			nullString(o.CommitSHA),
			o.ComponentID.String(),
			o.ComponentVersionID.String(),
			o.SourceID.String(),
			nullIDValue(o.SourcePackageID),
			o.ComponentName,
			nullString(o.InputFilePath),
			nullString(o.PackageManager),
			licenses,
			pq.Array(o.TraversalIDs),
			o.CreatedAt,
		)
	}

	rows, err := r.db.QueryContext(ctx, occurrenceUpsertQuery(len(occurrences)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert occurrences: %w", err)
	}
	defer rows.Close()

	ids := make([]shared.ID, 0, len(occurrences))
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("failed to scan occurrence id: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate occurrence ids: %w", err)
	}

	if len(ids) != len(occurrences) {
		return nil, fmt.Errorf("occurrence upsert returned %d ids for %d rows", len(ids), len(occurrences))
	}

	return ids, nil
}

// occurrenceUpsertQuery builds the occurrence upsert for n rows. The CASE on
// updated_at keeps an idempotent re-run from bumping the timestamp; a WHERE
// guard on the DO UPDATE would do the same but drops untouched rows from
// RETURNING, which must stay aligned with the input batch.
func occurrenceUpsertQuery(n int) string {
	const cols = 14
	return fmt.Sprintf(`
		INSERT INTO sbom_occurrences (
			id, project_id, pipeline_id, commit_sha, component_id,
			component_version_id, source_id, source_package_id,
			component_name, input_file_path, package_manager,
			licenses, traversal_ids, created_at
		)
		VALUES %s
		ON CONFLICT (component_id, component_version_id, source_id, source_package_id, project_id)
		DO UPDATE SET
			traversal_ids = EXCLUDED.traversal_ids,
			updated_at = CASE
				WHEN sbom_occurrences.traversal_ids IS DISTINCT FROM EXCLUDED.traversal_ids
				THEN NOW()
				ELSE sbom_occurrences.updated_at
			END
		RETURNING id
	`, valuesPlaceholders(n, cols))
}

// nullIDValue converts a shared.ID to a nullable string argument, mapping
// the zero id to NULL.
func nullIDValue(id shared.ID) any {
	if id.IsZero() {
		return nil
	}
	return id.String()
}
