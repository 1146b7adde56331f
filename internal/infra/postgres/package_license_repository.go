package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// PackageLicenseRepository implements sbom.PackageLicenseRepository using
// PostgreSQL. The underlying tables are maintained by an external feed; this
// repository only reads them.
type PackageLicenseRepository struct {
	db *DB
}

// NewPackageLicenseRepository creates a new PackageLicenseRepository.
func NewPackageLicenseRepository(db *DB) *PackageLicenseRepository {
	return &PackageLicenseRepository{db: db}
}

// GetPackage returns the stored license assignment for (purl type, name).
func (r *PackageLicenseRepository) GetPackage(ctx context.Context, purlType, name string) (*sbom.PackageLicense, error) {
	query := `
		SELECT purl_type, name, default_spdx_ids, lowest_version, highest_version, other
		FROM package_licenses
		WHERE purl_type = $1 AND name = $2
	`

	var (
		pkg             sbom.PackageLicense
		defaultIDs      pq.StringArray
		lowest, highest sql.NullString
		other           []byte
	)

	err := r.db.QueryRowContext(ctx, query, purlType, name).Scan(
		&pkg.PurlType, &pkg.Name, &defaultIDs, &lowest, &highest, &other,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package license %s/%s: %w", purlType, name, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package license: %w", err)
	}

	pkg.DefaultSpdxIDs = defaultIDs
	pkg.LowestVersion = nullStringValue(lowest)
	pkg.HighestVersion = nullStringValue(highest)
	if err := fromJSONB(other, &pkg.Other); err != nil {
		return nil, fmt.Errorf("failed to unmarshal license overrides: %w", err)
	}

	return &pkg, nil
}

// GetLicenses hydrates spdx identifiers into full license records. Unknown
// identifiers are simply absent from the result.
func (r *PackageLicenseRepository) GetLicenses(ctx context.Context, spdxIDs []string) ([]sbom.License, error) {
	if len(spdxIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT name, spdx_identifier, COALESCE(url, '')
		FROM licenses
		WHERE spdx_identifier = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(spdxIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get licenses: %w", err)
	}
	defer rows.Close()

	var licenses []sbom.License
	for rows.Next() {
		var l sbom.License
		if err := rows.Scan(&l.Name, &l.SpdxIdentifier, &l.URL); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate licenses: %w", err)
	}

	return licenses, nil
}
