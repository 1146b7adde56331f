// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types for ingestion jobs
const (
	TypeReportGroupStore        = "report:store_group"
	TypeScanPurge               = "scans:purge"
	TypeVulnerabilitySearchSync = "vulnerability:search_sync"
	TypeSecretRevocationScan    = "secret:revocation_scan"
)

// ReportGroupPayload identifies one pipeline report group to store.
type ReportGroupPayload struct {
	ProjectID      string   `json:"project_id"`
	OrganizationID string   `json:"organization_id"`
	PipelineID     string   `json:"pipeline_id"`
	CommitSHA      string   `json:"commit_sha"`
	ReportType     string   `json:"report_type"`
	ArtifactKeys   []string `json:"artifact_keys"`
	TraversalIDs   []int64  `json:"traversal_ids,omitempty"`
}

// SearchSyncPayload lists the vulnerabilities to re-index.
type SearchSyncPayload struct {
	VulnerabilityIDs []string `json:"vulnerability_ids"`
}

// RevocationScanPayload identifies the pipeline whose secrets need a
// revocation check.
type RevocationScanPayload struct {
	ProjectID  string `json:"project_id"`
	PipelineID string `json:"pipeline_id"`
}

// NewReportGroupTask creates a report group store task.
func NewReportGroupTask(payload ReportGroupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report group payload: %w", err)
	}
	return asynq.NewTask(
		TypeReportGroupStore,
		data,
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("ingest"),
	), nil
}

// NewScanPurgeTask creates a scan purge task. Purge runs are resumable, so
// a failed run is not retried; the next scheduled run continues from the
// checkpoint instead.
func NewScanPurgeTask() *asynq.Task {
	return asynq.NewTask(
		TypeScanPurge,
		nil,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("maintenance"),
	)
}

// NewSearchSyncTask creates a vulnerability search sync task.
func NewSearchSyncTask(payload SearchSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search sync payload: %w", err)
	}
	return asynq.NewTask(
		TypeVulnerabilitySearchSync,
		data,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.Queue("indexing"),
	), nil
}

// NewRevocationScanTask creates a secret revocation scan task.
func NewRevocationScanTask(payload RevocationScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal revocation scan payload: %w", err)
	}
	return asynq.NewTask(
		TypeSecretRevocationScan,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}
