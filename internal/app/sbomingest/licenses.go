package sbomingest

import (
	"context"
	"errors"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/report/versioncmp"
)

// LicenseResolver resolves the licenses of a package version from the stored
// license assignment database. Resolution is advisory: a package or version
// the database cannot place yields no licenses rather than an error, so a
// gap in license data never fails an ingestion.
type LicenseResolver struct {
	repo sbom.PackageLicenseRepository
}

func NewLicenseResolver(repo sbom.PackageLicenseRepository) *LicenseResolver {
	return &LicenseResolver{repo: repo}
}

// Resolve returns the licenses assigned to version of the named package.
//
// Explicit per-version overrides are checked first, in the order the record
// declares them. Otherwise the package's default licenses apply when the
// version sits inside [LowestVersion, HighestVersion]; an absent bound is
// unbounded on that side. Versions outside the range, unknown packages, and
// versions the ecosystem's scheme cannot parse all resolve to no licenses.
func (r *LicenseResolver) Resolve(ctx context.Context, purlType, name, version string) ([]sbom.License, error) {
	pkg, err := r.repo.GetPackage(ctx, purlType, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, override := range pkg.Other {
		for _, v := range override.Versions {
			cmp, err := versioncmp.Compare(purlType, version, v)
			if err != nil {
				continue
			}
			if cmp == 0 {
				return r.hydrate(ctx, override.SpdxIDs)
			}
		}
	}

	if pkg.HighestVersion != "" {
		cmp, err := versioncmp.Compare(purlType, version, pkg.HighestVersion)
		if err != nil || cmp > 0 {
			return nil, nil
		}
	}
	if pkg.LowestVersion != "" {
		cmp, err := versioncmp.Compare(purlType, version, pkg.LowestVersion)
		if err != nil || cmp < 0 {
			return nil, nil
		}
	}

	return r.hydrate(ctx, pkg.DefaultSpdxIDs)
}

func (r *LicenseResolver) hydrate(ctx context.Context, spdxIDs []string) ([]sbom.License, error) {
	if len(spdxIDs) == 0 {
		return nil, nil
	}
	return r.repo.GetLicenses(ctx, spdxIDs)
}
