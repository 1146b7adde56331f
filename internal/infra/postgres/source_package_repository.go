package postgres

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// SourcePackageRepository implements sbom.SourcePackageRepository using
// PostgreSQL.
type SourcePackageRepository struct {
	db *DB
}

// NewSourcePackageRepository creates a new SourcePackageRepository.
func NewSourcePackageRepository(db *DB) *SourcePackageRepository {
	return &SourcePackageRepository{db: db}
}

// UpsertBatch inserts source packages, leaving existing rows untouched.
func (r *SourcePackageRepository) UpsertBatch(ctx context.Context, rows []sbom.SourcePackage) error {
	if len(rows) == 0 {
		return nil
	}

	const cols = 4
	args := make([]any, 0, len(rows)*cols)
	for _, p := range rows {
		id := p.ID
		if id.IsZero() {
			id = shared.NewID()
		}
		args = append(args, id.String(), p.Name, p.PurlType, p.OrganizationID.String())
	}

	query := fmt.Sprintf(`
		INSERT INTO sbom_source_packages (id, name, purl_type, organization_id)
		VALUES %s
		ON CONFLICT (name, purl_type, organization_id) DO NOTHING
	`, valuesPlaceholders(len(rows), cols))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert source packages: %w", err)
	}

	return nil
}

// SelectIDs reads back ids for the given uniqueness keys.
func (r *SourcePackageRepository) SelectIDs(ctx context.Context, keys []sbom.SourcePackageKey) (map[sbom.SourcePackageKey]shared.ID, error) {
	ids := make(map[sbom.SourcePackageKey]shared.ID, len(keys))
	if len(keys) == 0 {
		return ids, nil
	}

	args := make([]any, 0, len(keys)*3)
	for _, k := range keys {
		args = append(args, k.Name, k.PurlType, k.OrganizationID.String())
	}

	query := fmt.Sprintf(`
		SELECT id, name, purl_type, organization_id
		FROM sbom_source_packages
		WHERE (name, purl_type, organization_id) IN (%s)
	`, valuesPlaceholders(len(keys), 3))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select source package ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idStr, name, purlType, orgStr string
		if err := rows.Scan(&idStr, &name, &purlType, &orgStr); err != nil {
			return nil, fmt.Errorf("failed to scan source package id: %w", err)
		}
		id, err := shared.IDFromString(idStr)
		if err != nil {
			return nil, err
		}
		orgID, err := shared.IDFromString(orgStr)
		if err != nil {
			return nil, err
		}
		ids[sbom.SourcePackageKey{Name: name, PurlType: purlType, OrganizationID: orgID}] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source package ids: %w", err)
	}

	return ids, nil
}
