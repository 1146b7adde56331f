package sbomingest

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/domain/vulnerability"
	"github.com/openctemio/ingest/pkg/logger"
)

// ingestOccurrences writes the occurrence rows. Licenses are resolved per
// map, in-batch duplicates of the identity tuple are discarded, and each
// surviving map is correlated against the vulnerability ledger.
type ingestOccurrences struct {
	spec     taskSpec
	repo     sbom.OccurrenceRepository
	vulns    vulnerability.Repository
	resolver *LicenseResolver
	logger   *logger.Logger
}

func newIngestOccurrences(repo sbom.OccurrenceRepository, vulns vulnerability.Repository, resolver *LicenseResolver, log *logger.Logger) (*ingestOccurrences, error) {
	spec, err := newTaskSpec("ingest_occurrences",
		[]string{"component_id", "component_version_id", "source_id", "source_package_id", "project_id"},
		[]string{"id", "component_id", "component_version_id", "source_id", "source_package_id", "project_id"},
	)
	if err != nil {
		return nil, err
	}
	return &ingestOccurrences{
		spec:     spec,
		repo:     repo,
		vulns:    vulns,
		resolver: resolver,
		logger:   log,
	}, nil
}

func (t *ingestOccurrences) Name() string { return t.spec.name }

func (t *ingestOccurrences) Execute(ctx context.Context, in *Input) error {
	maps := in.Maps
	now := time.Now().UTC()

	kept := make([]*sbom.OccurrenceMap, 0, len(maps))
	rows := make([]*sbom.Occurrence, 0, len(maps))
	seen := make(map[sbom.OccurrenceKey]struct{}, len(maps))

	for _, m := range maps {
		licenses, err := t.resolveLicenses(ctx, m)
		if err != nil {
			return err
		}

		occ := &sbom.Occurrence{
			ProjectID:          m.ProjectID,
			PipelineID:         in.PipelineID,
			CommitSHA:          in.CommitSHA,
			ComponentID:        m.ComponentID(),
			ComponentVersionID: m.ComponentVersionID(),
			SourceID:           m.SourceID(),
			SourcePackageID:    m.SourcePackageID(),
			ComponentName:      m.Name,
			InputFilePath:      m.InputFilePath,
			PackageManager:     m.PackageManager,
			Licenses:           licenses,
			TraversalIDs:       in.TraversalIDs,
			CreatedAt:          now,
		}

		// Identical identity tuples within one report collapse to a
		// single row; the duplicate maps drop out of the chain here.
		key := occ.UniqueKey()
		if _, dup := seen[key]; dup {
			metrics.SbomOccurrencesTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[key] = struct{}{}

		kept = append(kept, m)
		rows = append(rows, occ)
	}

	in.Maps = kept

	if len(rows) == 0 {
		return nil
	}

	ids, err := t.repo.UpsertBatch(ctx, rows)
	if err != nil {
		return err
	}

	for i, m := range kept {
		m.SetOccurrenceID(ids[i])
		metrics.SbomOccurrencesTotal.WithLabelValues("written").Inc()
	}

	return t.correlate(ctx, kept)
}

// resolveLicenses picks the licenses stored on an occurrence. Licenses the
// report itself declares win over the stored assignment database, even when
// none of them resolves: all-unknown declarations collapse to a counted
// placeholder, and declarations carrying no SPDX identifier at all store no
// licenses rather than falling back. Components without a purl carry no
// licenses either.
func (t *ingestOccurrences) resolveLicenses(ctx context.Context, m *sbom.OccurrenceMap) ([]sbom.License, error) {
	if !m.HasPurl {
		return nil, nil
	}

	if len(m.ReportLicenses) > 0 {
		known := make([]sbom.License, 0, len(m.ReportLicenses))
		unknown := 0
		for _, l := range m.ReportLicenses {
			switch l.SpdxIdentifier {
			case "":
			case sbom.UnknownLicenseSpdxID:
				unknown++
			default:
				known = append(known, l)
			}
		}
		if len(known) > 0 {
			return known, nil
		}
		if unknown == 0 {
			return nil, nil
		}
		metrics.SbomUnknownLicensesTotal.Inc()
		return []sbom.License{{
			Name:           fmt.Sprintf("%d %s", unknown, sbom.UnknownLicenseName),
			SpdxIdentifier: sbom.UnknownLicenseSpdxID,
		}}, nil
	}

	licenses, err := t.resolver.Resolve(ctx, m.PurlType, m.NormalizedName, m.Version)
	if err != nil {
		return nil, err
	}
	if len(licenses) == 0 {
		metrics.SbomUnknownLicensesTotal.Inc()
	}
	return licenses, nil
}

// correlate attaches vulnerability ledger ids recorded for each occurrence's
// (path, package, version) location.
func (t *ingestOccurrences) correlate(ctx context.Context, maps []*sbom.OccurrenceMap) error {
	for _, m := range maps {
		if !m.HasPurl || m.Version == "" {
			continue
		}
		ids, err := t.vulns.IDsByLocation(ctx, m.ProjectID, m.InputFilePath, m.Name, m.Version)
		if err != nil {
			return fmt.Errorf("correlate %s@%s: %w", m.Name, m.Version, err)
		}
		if len(ids) > 0 {
			m.SetVulnerabilityIDs(ids)
		}
	}
	return nil
}

// ingestOccurrencesVulnerabilities expands correlated vulnerability ids into
// join rows and re-indexes exactly the vulnerabilities that gained links.
type ingestOccurrencesVulnerabilities struct {
	spec   taskSpec
	repo   sbom.OccurrenceVulnerabilityRepository
	syncer VulnerabilitySyncer
	logger *logger.Logger
}

func newIngestOccurrencesVulnerabilities(repo sbom.OccurrenceVulnerabilityRepository, syncer VulnerabilitySyncer, log *logger.Logger) (*ingestOccurrencesVulnerabilities, error) {
	spec, err := newTaskSpec("ingest_occurrences_vulnerabilities",
		[]string{"occurrence_id", "vulnerability_id"},
		[]string{"occurrence_id", "vulnerability_id"},
	)
	if err != nil {
		return nil, err
	}
	return &ingestOccurrencesVulnerabilities{spec: spec, repo: repo, syncer: syncer, logger: log}, nil
}

func (t *ingestOccurrencesVulnerabilities) Name() string { return t.spec.name }

func (t *ingestOccurrencesVulnerabilities) Execute(ctx context.Context, in *Input) error {
	var links []sbom.OccurrenceVulnerability
	var touched []shared.ID
	for _, m := range in.Maps {
		for _, vulnID := range m.VulnerabilityIDs() {
			links = append(links, sbom.OccurrenceVulnerability{
				OccurrenceID:    m.OccurrenceID(),
				VulnerabilityID: vulnID,
			})
			touched = append(touched, vulnID)
		}
	}

	if len(links) == 0 {
		return nil
	}

	written, err := t.repo.InsertBatch(ctx, links)
	if err != nil {
		return err
	}
	if written == 0 {
		return nil
	}

	if t.syncer != nil {
		if err := t.syncer.EnqueueVulnerabilitySearchSync(ctx, dedupeIDs(touched)); err != nil {
			// Indexing lag is recoverable; the ingestion itself succeeded.
			t.logger.Warn("failed to enqueue vulnerability search sync", "error", err)
		}
	}

	return nil
}

func dedupeIDs(ids []shared.ID) []shared.ID {
	seen := make(map[shared.ID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
