package store

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/ingest/internal/app/sbomingest"
	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/finding"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
	"github.com/openctemio/ingest/pkg/report"
)

// Outcome reports what one artifact's store pass wrote.
type Outcome struct {
	// UUIDs lists every contract-valid finding uuid seen, written or
	// deduplicated, so the group fold can extend its known set.
	UUIDs []string
	// HasNew is true when at least one finding absent from the known
	// set was stored.
	HasNew bool
	Stored int
}

// StoreFindingsService persists one report's findings against its scan.
type StoreFindingsService struct {
	scans     scan.Repository
	findings  finding.Repository
	batchSize int
	logger    *logger.Logger
}

// NewStoreFindingsService creates the findings store service.
func NewStoreFindingsService(scans scan.Repository, findings finding.Repository, batchSize int, log *logger.Logger) (*StoreFindingsService, error) {
	if batchSize <= 0 {
		return nil, shared.NewDomainError("CONFIGURATION", "findings batch size must be positive", shared.ErrConfiguration)
	}
	return &StoreFindingsService{
		scans:     scans,
		findings:  findings,
		batchSize: batchSize,
		logger:    log.With("component", "store_findings"),
	}, nil
}

// Execute stores the report's findings. A scan that already has findings
// returns shared.ErrAlreadyStored without writing; findings whose uuid is in
// known are stored flagged as deduplicated.
func (s *StoreFindingsService) Execute(ctx context.Context, sc *scan.Scan, rep *report.Report, known map[string]struct{}) (*Outcome, error) {
	stored, err := s.scans.HasFindings(ctx, sc.ID)
	if err != nil {
		return nil, fmt.Errorf("check stored findings: %w", err)
	}
	if stored {
		return nil, shared.NewDomainError(
			"ALREADY_STORED",
			fmt.Sprintf("scan %s already has findings", sc.ID),
			shared.ErrAlreadyStored,
		)
	}

	valid, invalid := rep.ValidFindings()
	if len(invalid) > 0 {
		metrics.FindingsInvalidTotal.WithLabelValues(sc.ReportType.String()).Add(float64(len(invalid)))
		s.logger.Warn("dropping findings failing the scanner contract",
			"scan_id", sc.ID.String(),
			"scanner_id", rep.ScannerID,
			"invalid", len(invalid))
	}

	return s.insert(ctx, sc, valid, known)
}

func (s *StoreFindingsService) insert(ctx context.Context, sc *scan.Scan, valid []report.Finding, known map[string]struct{}) (*Outcome, error) {
	now := time.Now().UTC()
	out := &Outcome{UUIDs: make([]string, 0, len(valid))}

	rows := make([]*finding.Finding, 0, len(valid))
	for _, f := range valid {
		_, deduplicated := known[f.UUID]
		if !deduplicated {
			out.HasNew = true
		}
		out.UUIDs = append(out.UUIDs, f.UUID)
		rows = append(rows, convertFinding(f, sc, deduplicated, now))
	}

	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		n, err := s.findings.InsertBatch(ctx, rows[start:end])
		if err != nil {
			return nil, fmt.Errorf("insert findings batch: %w", err)
		}
		out.Stored += n
	}

	if out.Stored == 0 {
		out.HasNew = false
	}
	metrics.FindingsStoredTotal.WithLabelValues(sc.ReportType.String()).Add(float64(out.Stored))
	return out, nil
}

func convertFinding(f report.Finding, sc *scan.Scan, deduplicated bool, now time.Time) *finding.Finding {
	identifiers := make([]finding.Identifier, 0, len(f.Identifiers))
	for _, id := range f.Identifiers {
		identifiers = append(identifiers, finding.Identifier{
			Type:  id.Type,
			Name:  id.Name,
			Value: id.Value,
			URL:   id.URL,
		})
	}

	return &finding.Finding{
		UUID:           f.UUID,
		OverriddenUUID: f.OverriddenUUID,
		ScanID:         sc.ID,
		ScannerID:      f.ScannerID,
		Severity:       finding.Severity(f.Severity),
		State:          finding.StateDetected,
		Deduplicated:   deduplicated,
		Data: finding.Data{
			Name:        f.Name,
			Description: f.Description,
			Location: finding.Location{
				File:           f.Location.File,
				StartLine:      f.Location.StartLine,
				EndLine:        f.Location.EndLine,
				Image:          f.Location.Image,
				PackageName:    f.Location.PackageName,
				PackageVersion: f.Location.PackageVersion,
			},
			Identifiers:      identifiers,
			Links:            f.Links,
			Evidence:         f.Evidence,
			RemediationStart: f.RemediationStart,
			RemediationEnd:   f.RemediationEnd,
		},
		CreatedAt: now,
	}
}

// StoreSbomFindingsService stores SBOM report findings and then runs the
// component ingestion chain over the report's component graph. Findings
// already stored by another pipeline's report of the same content are
// excluded up front.
type StoreSbomFindingsService struct {
	inner    *StoreFindingsService
	findings finding.Repository
	chain    *sbomingest.Chain
	logger   *logger.Logger
}

// NewStoreSbomFindingsService creates the SBOM findings store service.
func NewStoreSbomFindingsService(inner *StoreFindingsService, findings finding.Repository, chain *sbomingest.Chain, log *logger.Logger) *StoreSbomFindingsService {
	return &StoreSbomFindingsService{
		inner:    inner,
		findings: findings,
		chain:    chain,
		logger:   log.With("component", "store_sbom_findings"),
	}
}

// Execute stores findings with cross-report deduplication, then ingests the
// report's components as occurrences.
func (s *StoreSbomFindingsService) Execute(ctx context.Context, sc *scan.Scan, rep *report.Report, known map[string]struct{}, commitSHA string, organizationID shared.ID, traversalIDs []int64) (*Outcome, error) {
	valid, _ := rep.ValidFindings()
	if len(valid) > 0 {
		uuids := make([]string, 0, len(valid))
		for _, f := range valid {
			uuids = append(uuids, f.UUID)
		}
		existing, err := s.findings.ExistingUUIDs(ctx, uuids)
		if err != nil {
			return nil, fmt.Errorf("lookup existing finding uuids: %w", err)
		}
		for uuid := range existing {
			known[uuid] = struct{}{}
		}
	}

	out, err := s.inner.Execute(ctx, sc, rep, known)
	if err != nil {
		return nil, err
	}

	in := &sbomingest.Input{
		PipelineID:   sc.PipelineID,
		CommitSHA:    commitSHA,
		TraversalIDs: traversalIDs,
		Source:       sbomingest.ConvertSource(rep.Source),
		Maps:         sbomingest.BuildOccurrenceMaps(rep, sc.ProjectID, organizationID),
	}
	if err := s.chain.Execute(ctx, in); err != nil {
		return nil, fmt.Errorf("ingest sbom components: %w", err)
	}

	return out, nil
}
