package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// ComponentVersionRepository implements sbom.ComponentVersionRepository
// using PostgreSQL.
type ComponentVersionRepository struct {
	db *DB
}

// NewComponentVersionRepository creates a new ComponentVersionRepository.
func NewComponentVersionRepository(db *DB) *ComponentVersionRepository {
	return &ComponentVersionRepository{db: db}
}

// UpsertBatch inserts component versions, leaving existing rows untouched.
func (r *ComponentVersionRepository) UpsertBatch(ctx context.Context, rows []sbom.ComponentVersion) error {
	if len(rows) == 0 {
		return nil
	}

	const cols = 3
	args := make([]any, 0, len(rows)*cols)
	for _, v := range rows {
		id := v.ID
		if id.IsZero() {
			id = shared.NewID()
		}
		args = append(args, id.String(), v.ComponentID.String(), v.Version)
	}

	query := fmt.Sprintf(`
		INSERT INTO sbom_component_versions (id, component_id, version)
		VALUES %s
		ON CONFLICT (component_id, version) DO NOTHING
	`, valuesPlaceholders(len(rows), cols))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert component versions: %w", err)
	}

	return nil
}

// SelectIDs reads back ids for the given uniqueness keys.
func (r *ComponentVersionRepository) SelectIDs(ctx context.Context, keys []sbom.ComponentVersionKey) (map[sbom.ComponentVersionKey]shared.ID, error) {
	ids := make(map[sbom.ComponentVersionKey]shared.ID, len(keys))
	if len(keys) == 0 {
		return ids, nil
	}

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k.ComponentID.String(), k.Version)
	}

	query := fmt.Sprintf(`
		SELECT id, component_id, version
		FROM sbom_component_versions
		WHERE (component_id, version) IN (%s)
	`, valuesPlaceholders(len(keys), 2))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select component version ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idStr, componentStr, version string
		if err := rows.Scan(&idStr, &componentStr, &version); err != nil {
			return nil, fmt.Errorf("failed to scan component version id: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		componentID, err := shared.IDFromString(componentStr)
		if err != nil {
			return nil, err
		}
		ids[sbom.ComponentVersionKey{ComponentID: componentID, Version: version}] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate component version ids: %w", err)
	}

	return ids, nil
}
