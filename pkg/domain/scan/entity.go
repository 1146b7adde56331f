// Package scan provides the scan domain model: one record per scanner run
// per pipeline artifact.
package scan

import (
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Scan represents one scanner run's metadata for a pipeline.
// Exactly one scan exists per (pipeline, report type, artifact).
type Scan struct {
	ID         shared.ID
	ProjectID  shared.ID
	PipelineID shared.ID
	ReportType ReportType
	ScannerID  string
	// ArtifactKey identifies the CI artifact this scan was stored from,
	// making the (pipeline, report type, artifact) tuple unique.
	ArtifactKey string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewScan creates a scan record in the created state.
func NewScan(projectID, pipelineID shared.ID, reportType ReportType, scannerID, artifactKey string) (*Scan, error) {
	if projectID.IsZero() || pipelineID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "project and pipeline are required", shared.ErrValidation)
	}
	if _, err := ParseReportType(string(reportType)); err != nil {
		return nil, err
	}
	if artifactKey == "" {
		return nil, shared.NewDomainError("VALIDATION", "artifact key is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Scan{
		ID:          shared.NewID(),
		ProjectID:   projectID,
		PipelineID:  pipelineID,
		ReportType:  reportType,
		ScannerID:   scannerID,
		ArtifactKey: artifactKey,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the scan to the next status, enforcing monotonicity.
func (s *Scan) Transition(next Status) error {
	if !s.Status.CanTransitionTo(next) {
		return shared.NewDomainError(
			"INVALID_TRANSITION",
			"cannot transition scan from "+string(s.Status)+" to "+string(next),
			shared.ErrInvalidInput,
		)
	}
	s.Status = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Purged reports whether the scan has been soft-deleted.
func (s *Scan) Purged() bool {
	return s.Status == StatusPurged
}
