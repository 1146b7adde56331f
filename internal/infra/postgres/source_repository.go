package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// SourceRepository implements sbom.SourceRepository using PostgreSQL.
type SourceRepository struct {
	db *DB
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Upsert stores the source context and returns its id, reusing an existing
// row with identical content. The DO UPDATE is a no-op write that makes
// RETURNING produce the id on both paths.
func (r *SourceRepository) Upsert(ctx context.Context, src sbom.Source) (shared.ID, error) {
	data, err := toJSONB(src.Data)
	if err != nil {
		return shared.ID{}, fmt.Errorf("failed to marshal source data: %w", err)
	}

	id := src.ID
	if id.IsZero() {
		id = shared.NewID()
	}

	query := `
		INSERT INTO sbom_sources (id, source_type, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_type, data) DO UPDATE SET source_type = EXCLUDED.source_type
		RETURNING id
	`

	var idStr string
	if err := r.db.QueryRowContext(ctx, query, id.String(), src.SourceType, data).Scan(&idStr); err != nil {
		return shared.ID{}, fmt.Errorf("failed to upsert source: %w", err)
	}

	return shared.IDFromString(idStr)
}
