package sbomingest

import (
	"context"
	"fmt"

	"github.com/openctemio/ingest/pkg/domain/sbom"
)

// ingestComponents resolves the global component dictionary. Maps sharing a
// (normalized name, purl type) key all receive the same component id,
// including exact duplicates; the same name under a different purl type
// stays a distinct component.
type ingestComponents struct {
	spec taskSpec
	repo sbom.ComponentRepository
}

func newIngestComponents(repo sbom.ComponentRepository) (*ingestComponents, error) {
	spec, err := newTaskSpec("ingest_components",
		[]string{"name", "purl_type"},
		[]string{"id", "name", "purl_type"},
	)
	if err != nil {
		return nil, err
	}
	return &ingestComponents{spec: spec, repo: repo}, nil
}

func (t *ingestComponents) Name() string { return t.spec.name }

func (t *ingestComponents) Execute(ctx context.Context, in *Input) error {
	maps := in.Maps
	rows := make([]sbom.Component, 0, len(maps))
	seen := make(map[sbom.ComponentKey]struct{}, len(maps))
	for _, m := range maps {
		key := m.ComponentLookupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, sbom.Component{
			Name:           key.Name,
			PurlType:       key.PurlType,
			ComponentType:  m.ComponentType,
			OrganizationID: m.OrganizationID,
		})
	}

	if err := t.repo.UpsertBatch(ctx, rows); err != nil {
		return err
	}

	keys := make([]sbom.ComponentKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	ids, err := t.repo.SelectIDs(ctx, keys)
	if err != nil {
		return err
	}

	for _, m := range maps {
		id, ok := ids[m.ComponentLookupKey()]
		if !ok {
			return fmt.Errorf("component %s/%s missing after upsert", m.PurlType, m.NormalizedName)
		}
		m.SetComponentID(id)
	}

	return nil
}

// ingestComponentVersions resolves the (component, version) dictionary.
// Maps without a version keep a zero version id; the occurrence still
// records the component itself.
type ingestComponentVersions struct {
	spec taskSpec
	repo sbom.ComponentVersionRepository
}

func newIngestComponentVersions(repo sbom.ComponentVersionRepository) (*ingestComponentVersions, error) {
	spec, err := newTaskSpec("ingest_component_versions",
		[]string{"component_id", "version"},
		[]string{"id", "component_id", "version"},
	)
	if err != nil {
		return nil, err
	}
	return &ingestComponentVersions{spec: spec, repo: repo}, nil
}

func (t *ingestComponentVersions) Name() string { return t.spec.name }

func (t *ingestComponentVersions) Execute(ctx context.Context, in *Input) error {
	maps := in.Maps
	rows := make([]sbom.ComponentVersion, 0, len(maps))
	seen := make(map[sbom.ComponentVersionKey]struct{}, len(maps))
	for _, m := range maps {
		if m.Version == "" {
			continue
		}
		key := sbom.ComponentVersionKey{ComponentID: m.ComponentID(), Version: m.Version}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, sbom.ComponentVersion{
			ComponentID: key.ComponentID,
			Version:     key.Version,
		})
	}

	if len(rows) == 0 {
		return nil
	}

	if err := t.repo.UpsertBatch(ctx, rows); err != nil {
		return err
	}

	keys := make([]sbom.ComponentVersionKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	ids, err := t.repo.SelectIDs(ctx, keys)
	if err != nil {
		return err
	}

	for _, m := range maps {
		if m.Version == "" {
			continue
		}
		key := sbom.ComponentVersionKey{ComponentID: m.ComponentID(), Version: m.Version}
		id, ok := ids[key]
		if !ok {
			return fmt.Errorf("component version %s@%s missing after upsert", m.NormalizedName, m.Version)
		}
		m.SetComponentVersionID(id)
	}

	return nil
}

// ingestSourcePackages resolves OS-level source package identities. Maps
// whose component has no source package skip this stage entirely.
type ingestSourcePackages struct {
	spec taskSpec
	repo sbom.SourcePackageRepository
}

func newIngestSourcePackages(repo sbom.SourcePackageRepository) (*ingestSourcePackages, error) {
	spec, err := newTaskSpec("ingest_source_packages",
		[]string{"name", "purl_type", "organization_id"},
		[]string{"id", "name", "purl_type", "organization_id"},
	)
	if err != nil {
		return nil, err
	}
	return &ingestSourcePackages{spec: spec, repo: repo}, nil
}

func (t *ingestSourcePackages) Name() string { return t.spec.name }

func (t *ingestSourcePackages) Execute(ctx context.Context, in *Input) error {
	maps := in.Maps
	rows := make([]sbom.SourcePackage, 0, len(maps))
	seen := make(map[sbom.SourcePackageKey]struct{}, len(maps))
	for _, m := range maps {
		if m.SourcePackageName == "" {
			continue
		}
		key := sbom.SourcePackageKey{
			Name:           m.SourcePackageName,
			PurlType:       m.PurlType,
			OrganizationID: m.OrganizationID,
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, sbom.SourcePackage{
			Name:           key.Name,
			PurlType:       key.PurlType,
			OrganizationID: key.OrganizationID,
		})
	}

	if len(rows) == 0 {
		return nil
	}

	if err := t.repo.UpsertBatch(ctx, rows); err != nil {
		return err
	}

	keys := make([]sbom.SourcePackageKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	ids, err := t.repo.SelectIDs(ctx, keys)
	if err != nil {
		return err
	}

	for _, m := range maps {
		if m.SourcePackageName == "" {
			continue
		}
		key := sbom.SourcePackageKey{
			Name:           m.SourcePackageName,
			PurlType:       m.PurlType,
			OrganizationID: m.OrganizationID,
		}
		id, ok := ids[key]
		if !ok {
			return fmt.Errorf("source package %s/%s missing after upsert", m.PurlType, m.SourcePackageName)
		}
		m.SetSourcePackageID(id)
	}

	return nil
}
