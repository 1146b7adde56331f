package sbom

import (
	"context"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// ComponentRepository persists the global component dictionary.
type ComponentRepository interface {
	// UpsertBatch inserts components with conflict-ignore semantics.
	// Existing rows are never touched.
	UpsertBatch(ctx context.Context, rows []Component) error

	// SelectIDs reads back ids for the given uniqueness keys.
	SelectIDs(ctx context.Context, keys []ComponentKey) (map[ComponentKey]shared.ID, error)
}

// ComponentVersionRepository persists the (component, version) dictionary.
type ComponentVersionRepository interface {
	UpsertBatch(ctx context.Context, rows []ComponentVersion) error
	SelectIDs(ctx context.Context, keys []ComponentVersionKey) (map[ComponentVersionKey]shared.ID, error)
}

// SourcePackageRepository persists OS-level source package identities.
type SourcePackageRepository interface {
	UpsertBatch(ctx context.Context, rows []SourcePackage) error
	SelectIDs(ctx context.Context, keys []SourcePackageKey) (map[SourcePackageKey]shared.ID, error)
}

// SourceRepository persists report source contexts.
type SourceRepository interface {
	// Upsert stores the source and returns its id, reusing an existing
	// row with identical content.
	Upsert(ctx context.Context, src Source) (shared.ID, error)
}

// OccurrenceRepository persists occurrences.
type OccurrenceRepository interface {
	// UpsertBatch writes occurrences keyed by their identity tuple.
	// On conflict only mutable metadata (project, traversal ids) is
	// refreshed; pipeline-only fields are left alone so re-running the
	// same pipeline does not bump updated_at. Returns ids aligned with
	// the input rows.
	UpsertBatch(ctx context.Context, rows []*Occurrence) ([]shared.ID, error)
}

// OccurrenceVulnerabilityRepository persists occurrence-vulnerability links.
type OccurrenceVulnerabilityRepository interface {
	// InsertBatch inserts join rows with conflict-ignore semantics and
	// returns the number of rows written.
	InsertBatch(ctx context.Context, rows []OccurrenceVulnerability) (int64, error)
}

// PackageLicenseRepository reads the stored license assignment database.
type PackageLicenseRepository interface {
	// GetPackage returns the license record for (purl type, name), or
	// shared.ErrNotFound.
	GetPackage(ctx context.Context, purlType, name string) (*PackageLicense, error)

	// GetLicenses hydrates spdx identifiers into full license records.
	GetLicenses(ctx context.Context, spdxIDs []string) ([]License, error)
}
