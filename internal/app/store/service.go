// Package store implements report group ingestion: fetching a pipeline's
// report artifacts, parsing them, and storing scans and findings under a
// distributed lease so concurrent deliveries of the same group cannot
// interleave.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
	"github.com/openctemio/ingest/pkg/report"
)

// ArtifactStore fetches report artifact blobs and releases their caches.
type ArtifactStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	ClearPrefix(prefix string)
}

// Lease is a held distributed lease.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseAcquirer hands out distributed leases keyed by name.
type LeaseAcquirer interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// ReadyMarker flags a pipeline's report group as fully processed.
type ReadyMarker interface {
	MarkReady(ctx context.Context, pipelineID shared.ID, reportType string) error
}

// Notifier enqueues downstream signals raised by stored findings.
type Notifier interface {
	EnqueueSecretRevocationScan(ctx context.Context, projectID, pipelineID shared.ID) error
}

// GroupInput identifies one pipeline's report group and its artifacts.
type GroupInput struct {
	ProjectID      shared.ID
	OrganizationID shared.ID
	PipelineID     shared.ID
	CommitSHA      string
	ReportType     scan.ReportType
	ArtifactKeys   []string
	// TraversalIDs is the project's namespace ancestry at enqueue time.
	// Occurrence rows refresh it in place on re-ingestion.
	TraversalIDs []int64
}

// storeFunc stores one parsed artifact's report against its scan.
type storeFunc func(ctx context.Context, in *GroupInput, sc *scan.Scan, rep *report.Report, known map[string]struct{}) (*Outcome, error)

// StoreGroupedScansService processes all artifacts of one report type within
// a pipeline as a single unit of work.
type StoreGroupedScansService struct {
	scans     scan.Repository
	artifacts ArtifactStore
	leases    LeaseAcquirer
	state     ReadyMarker
	notifier  Notifier
	dispatch  map[scan.ReportType]storeFunc
	logger    *logger.Logger
}

// NewStoreGroupedScansService wires the group store service. The dispatch
// table must cover every report type; a gap is a configuration error caught
// here, not at the first unlucky job.
func NewStoreGroupedScansService(
	scans scan.Repository,
	artifacts ArtifactStore,
	leases LeaseAcquirer,
	state ReadyMarker,
	notifier Notifier,
	findings *StoreFindingsService,
	sbomFindings *StoreSbomFindingsService,
	log *logger.Logger,
) (*StoreGroupedScansService, error) {
	s := &StoreGroupedScansService{
		scans:     scans,
		artifacts: artifacts,
		leases:    leases,
		state:     state,
		notifier:  notifier,
		logger:    log.With("component", "store_grouped_scans"),
	}

	security := func(ctx context.Context, in *GroupInput, sc *scan.Scan, rep *report.Report, known map[string]struct{}) (*Outcome, error) {
		return findings.Execute(ctx, sc, rep, known)
	}
	s.dispatch = map[scan.ReportType]storeFunc{
		scan.ReportTypeSAST:               security,
		scan.ReportTypeDependencyScanning: security,
		scan.ReportTypeContainerScanning:  security,
		scan.ReportTypeSecretDetection:    security,
		scan.ReportTypeCycloneDX: func(ctx context.Context, in *GroupInput, sc *scan.Scan, rep *report.Report, known map[string]struct{}) (*Outcome, error) {
			return sbomFindings.Execute(ctx, sc, rep, known, in.CommitSHA, in.OrganizationID, in.TraversalIDs)
		},
	}
	for _, rt := range scan.ReportTypes() {
		if _, ok := s.dispatch[rt]; !ok {
			return nil, shared.NewDomainError(
				"CONFIGURATION",
				"no store handler for report type "+rt.String(),
				shared.ErrConfiguration,
			)
		}
	}

	return s, nil
}

// Execute stores the group. The lease serializes groups per (pipeline,
// report type); a held lease after bounded retries fails the whole group
// with shared.ErrLeaseHeld and no partial writes. Cleanup runs on every
// exit path: consumers polling the ready marker must see it even when an
// artifact failed, and the lease must never outlive the attempt.
func (s *StoreGroupedScansService) Execute(ctx context.Context, in *GroupInput) error {
	start := time.Now()
	log := s.logger.With(
		"pipeline_id", in.PipelineID.String(),
		"report_type", in.ReportType.String(),
	)

	leaseKey := fmt.Sprintf("store_grouped_scans:%s:%s", in.PipelineID, in.ReportType)
	lease, err := s.leases.Acquire(ctx, leaseKey)
	if err != nil {
		if shared.IsLeaseHeld(err) {
			metrics.LeaseContentionTotal.Inc()
		}
		return fmt.Errorf("acquire group lease: %w", err)
	}

	status := "succeeded"
	defer func() {
		if err := s.state.MarkReady(ctx, in.PipelineID, in.ReportType.String()); err != nil {
			log.Warn("failed to mark report group ready", "error", err)
		}
		for _, key := range in.ArtifactKeys {
			s.artifacts.ClearPrefix(key)
		}
		if err := lease.Release(ctx); err != nil {
			log.Warn("failed to release group lease", "error", err)
		}
		metrics.ReportGroupsTotal.WithLabelValues(in.ReportType.String(), status).Inc()
		metrics.ReportGroupDuration.WithLabelValues(in.ReportType.String()).Observe(time.Since(start).Seconds())
	}()

	parsed := s.parseArtifacts(ctx, in, log)

	// Deduplication folds left to right over the accumulated uuid set, so
	// the artifact order must not depend on delivery order.
	sort.SliceStable(parsed, func(i, j int) bool {
		oi := report.ScannerOrder(in.ReportType, parsed[i].report.ScannerID)
		oj := report.ScannerOrder(in.ReportType, parsed[j].report.ScannerID)
		if oi != oj {
			return oi < oj
		}
		if parsed[i].report.ScannerID != parsed[j].report.ScannerID {
			return parsed[i].report.ScannerID < parsed[j].report.ScannerID
		}
		return parsed[i].key < parsed[j].key
	})

	known := make(map[string]struct{})
	anyNew := false
	var errs []error
	for _, pa := range parsed {
		outcome, err := s.storeArtifact(ctx, in, pa, known)
		if err != nil {
			log.Error("failed to store report artifact", "artifact", pa.key, "error", err)
			errs = append(errs, fmt.Errorf("artifact %s: %w", pa.key, err))
			continue
		}
		if outcome == nil {
			continue
		}
		for _, uuid := range outcome.UUIDs {
			known[uuid] = struct{}{}
		}
		anyNew = anyNew || outcome.HasNew
	}

	if in.ReportType == scan.ReportTypeSecretDetection && anyNew && s.notifier != nil {
		if err := s.notifier.EnqueueSecretRevocationScan(ctx, in.ProjectID, in.PipelineID); err != nil {
			log.Warn("failed to enqueue secret revocation scan", "error", err)
		}
	}

	if len(errs) > 0 {
		status = "failed"
		return errors.Join(errs...)
	}

	log.Info("report group stored", "artifacts", len(parsed), "new_findings", anyNew)
	return nil
}

type parsedArtifact struct {
	key    string
	report *report.Report
}

// parseArtifacts fetches and decodes each artifact. An artifact that cannot
// be fetched or parsed is reported and skipped; the rest of the group still
// stores.
func (s *StoreGroupedScansService) parseArtifacts(ctx context.Context, in *GroupInput, log *logger.Logger) []parsedArtifact {
	parsed := make([]parsedArtifact, 0, len(in.ArtifactKeys))
	for _, key := range in.ArtifactKeys {
		blob, err := s.artifacts.Fetch(ctx, key)
		if err != nil {
			log.Error("failed to fetch report artifact", "artifact", key, "error", err)
			continue
		}

		rep, err := s.parse(in.ReportType, blob)
		if err != nil {
			log.Error("failed to parse report artifact", "artifact", key, "error", err)
			continue
		}

		parsed = append(parsed, parsedArtifact{key: key, report: rep})
	}
	return parsed
}

func (s *StoreGroupedScansService) parse(reportType scan.ReportType, blob []byte) (*report.Report, error) {
	if reportType == scan.ReportTypeCycloneDX {
		return report.FromCycloneDX(blob)
	}
	return report.FromSecurityJSON(blob)
}

// storeArtifact creates the artifact's scan record, stores its report
// through the dispatch table, and settles the scan status. A scan whose
// findings were already stored by an earlier delivery is left untouched.
func (s *StoreGroupedScansService) storeArtifact(ctx context.Context, in *GroupInput, pa parsedArtifact, known map[string]struct{}) (*Outcome, error) {
	sc, err := scan.NewScan(in.ProjectID, in.PipelineID, in.ReportType, pa.report.ScannerID, pa.key)
	if err != nil {
		return nil, err
	}

	fresh := true
	if err := s.scans.Create(ctx, sc); err != nil {
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return nil, fmt.Errorf("create scan: %w", err)
		}
		fresh = false
		sc, err = s.scans.GetByPipelineAndArtifact(ctx, in.PipelineID, in.ReportType, pa.key)
		if err != nil {
			return nil, fmt.Errorf("load existing scan: %w", err)
		}
	}

	outcome, err := s.dispatch[in.ReportType](ctx, in, sc, pa.report, known)
	if err != nil {
		if shared.IsAlreadyStored(err) {
			s.logger.Debug("scan findings already stored", "scan_id", sc.ID.String(), "artifact", pa.key)
			return nil, nil
		}
		if fresh {
			if stErr := s.scans.UpdateStatus(ctx, sc.ID, scan.StatusFailed); stErr != nil {
				s.logger.Warn("failed to mark scan failed", "scan_id", sc.ID.String(), "error", stErr)
			}
		}
		return nil, err
	}

	if fresh {
		if err := s.scans.UpdateStatus(ctx, sc.ID, scan.StatusSucceeded); err != nil {
			s.logger.Warn("failed to mark scan succeeded", "scan_id", sc.ID.String(), "error", err)
		}
	}

	return outcome, nil
}
