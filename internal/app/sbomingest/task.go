// Package sbomingest turns parsed SBOM reports into persisted component
// dictionaries, occurrences, and vulnerability links. Ingestion runs as a
// fixed chain of bulk tasks over a shared slice of occurrence maps; each
// task resolves one class of foreign ids and fans them back onto the maps
// for the tasks behind it.
package sbomingest

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/domain/vulnerability"
	"github.com/openctemio/ingest/pkg/logger"
)

// Repos bundles the persistence interfaces the ingestion chain writes to.
type Repos struct {
	Components                sbom.ComponentRepository
	ComponentVersions         sbom.ComponentVersionRepository
	SourcePackages            sbom.SourcePackageRepository
	Sources                   sbom.SourceRepository
	Occurrences               sbom.OccurrenceRepository
	OccurrenceVulnerabilities sbom.OccurrenceVulnerabilityRepository
	PackageLicenses           sbom.PackageLicenseRepository
	Vulnerabilities           vulnerability.Repository
}

// VulnerabilitySyncer re-indexes vulnerabilities whose occurrence links
// changed. Implemented by the background job client.
type VulnerabilitySyncer interface {
	EnqueueVulnerabilitySearchSync(ctx context.Context, ids []shared.ID) error
}

// Input carries one report's ingestion state through the chain. Tasks read
// Maps and may compact it; the pipeline context is fixed for the whole run.
type Input struct {
	PipelineID   shared.ID
	CommitSHA    string
	TraversalIDs []int64
	Source       *sbom.Source
	Maps         []*sbom.OccurrenceMap
}

// task is one stage of the ingestion chain. A stage that discards duplicate
// maps compacts in.Maps for the stages behind it.
type task interface {
	Name() string
	Execute(ctx context.Context, in *Input) error
}

// taskSpec declares a bulk task's write shape: the entity it writes, the
// columns its uniqueness key is built from, and the columns it reads back.
// The uniqueness key must be readable back, otherwise the task could never
// fan resolved ids onto its maps; that mistake is caught at construction,
// before any I/O.
type taskSpec struct {
	name     string
	uniqueBy []string
	uses     []string
}

func newTaskSpec(name string, uniqueBy, uses []string) (taskSpec, error) {
	for _, col := range uniqueBy {
		if !slices.Contains(uses, col) {
			return taskSpec{}, shared.NewDomainError(
				"CONFIGURATION",
				fmt.Sprintf("task %s: unique_by column %q is not read back", name, col),
				shared.ErrConfiguration,
			)
		}
	}
	return taskSpec{name: name, uniqueBy: uniqueBy, uses: uses}, nil
}

// Chain executes the ingestion tasks in their fixed order.
type Chain struct {
	sources sbom.SourceRepository
	tasks   []task
	logger  *logger.Logger
}

// NewChain wires the ingestion chain. Construction fails if any task
// declaration is inconsistent.
func NewChain(repos Repos, resolver *LicenseResolver, syncer VulnerabilitySyncer, log *logger.Logger) (*Chain, error) {
	components, err := newIngestComponents(repos.Components)
	if err != nil {
		return nil, err
	}
	versions, err := newIngestComponentVersions(repos.ComponentVersions)
	if err != nil {
		return nil, err
	}
	sourcePackages, err := newIngestSourcePackages(repos.SourcePackages)
	if err != nil {
		return nil, err
	}
	occurrences, err := newIngestOccurrences(repos.Occurrences, repos.Vulnerabilities, resolver, log)
	if err != nil {
		return nil, err
	}
	occurrenceVulns, err := newIngestOccurrencesVulnerabilities(repos.OccurrenceVulnerabilities, syncer, log)
	if err != nil {
		return nil, err
	}

	return &Chain{
		sources: repos.Sources,
		tasks:   []task{components, versions, sourcePackages, occurrences, occurrenceVulns},
		logger:  log.With("component", "sbom_ingest"),
	}, nil
}

// Execute runs the chain over the maps built from one report. The report
// source is stored first so every map carries its id into the chain.
func (c *Chain) Execute(ctx context.Context, in *Input) error {
	if len(in.Maps) == 0 {
		return nil
	}

	if in.Source != nil {
		sourceID, err := c.sources.Upsert(ctx, *in.Source)
		if err != nil {
			return fmt.Errorf("ingest source: %w", err)
		}
		for _, m := range in.Maps {
			m.SetSourceID(sourceID)
		}
	}

	for _, t := range c.tasks {
		start := time.Now()
		err := t.Execute(ctx, in)
		metrics.SbomTaskDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}

	c.logger.Info("sbom ingestion finished", "occurrences", len(in.Maps))
	return nil
}
