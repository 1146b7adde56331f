package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// ComponentRepository implements sbom.ComponentRepository using PostgreSQL.
type ComponentRepository struct {
	db *DB
}

// NewComponentRepository creates a new ComponentRepository.
func NewComponentRepository(db *DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

// UpsertBatch inserts components, leaving existing rows untouched. The
// dictionary is append-only: a component's type is whatever the first
// report said it was.
func (r *ComponentRepository) UpsertBatch(ctx context.Context, rows []sbom.Component) error {
	if len(rows) == 0 {
		return nil
	}

	const cols = 5
	args := make([]any, 0, len(rows)*cols)
	for _, c := range rows {
		id := c.ID
		if id.IsZero() {
			id = shared.NewID()
		}
		args = append(args,
			id.String(),
			c.Name,
			c.PurlType,
			nullString(c.ComponentType),
			c.OrganizationID.String(),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO sbom_components (id, name, purl_type, component_type, organization_id)
		VALUES %s
		ON CONFLICT (name, purl_type) DO NOTHING
	`, valuesPlaceholders(len(rows), cols))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert components: %w", err)
	}

	return nil
}

// SelectIDs reads back ids for the given uniqueness keys.
func (r *ComponentRepository) SelectIDs(ctx context.Context, keys []sbom.ComponentKey) (map[sbom.ComponentKey]shared.ID, error) {
	ids := make(map[sbom.ComponentKey]shared.ID, len(keys))
	if len(keys) == 0 {
		return ids, nil
	}

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k.Name, k.PurlType)
	}

	query := fmt.Sprintf(`
		SELECT id, name, purl_type
		FROM sbom_components
		WHERE (name, purl_type) IN (%s)
	`, valuesPlaceholders(len(keys), 2))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select component ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idStr string
		var key sbom.ComponentKey
		if err := rows.Scan(&idStr, &key.Name, &key.PurlType); err != nil {
			return nil, fmt.Errorf("failed to scan component id: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		ids[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate component ids: %w", err)
	}

	return ids, nil
}
