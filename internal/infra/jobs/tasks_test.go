package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

func TestNewReportGroupTask(t *testing.T) {
	payload := ReportGroupPayload{
		ProjectID:      shared.NewID().String(),
		OrganizationID: shared.NewID().String(),
		PipelineID:     shared.NewID().String(),
		CommitSHA:      "deadbeef",
		ReportType:     "sast",
		ArtifactKeys:   []string{"a/report.json"},
	}

	task, err := NewReportGroupTask(payload)

	require.NoError(t, err)
	assert.Equal(t, TypeReportGroupStore, task.Type())

	var decoded ReportGroupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, payload, decoded)
}

func TestNewScanPurgeTask(t *testing.T) {
	task := NewScanPurgeTask()

	assert.Equal(t, TypeScanPurge, task.Type())
	assert.Empty(t, task.Payload())
}

func TestNewSearchSyncTask(t *testing.T) {
	task, err := NewSearchSyncTask(SearchSyncPayload{
		VulnerabilityIDs: []string{shared.NewID().String()},
	})

	require.NoError(t, err)
	assert.Equal(t, TypeVulnerabilitySearchSync, task.Type())
}

func TestGroupInputFromPayload(t *testing.T) {
	projectID := shared.NewID()
	pipelineID := shared.NewID()

	in, err := groupInputFromPayload(ReportGroupPayload{
		ProjectID:      projectID.String(),
		OrganizationID: shared.NewID().String(),
		PipelineID:     pipelineID.String(),
		CommitSHA:      "deadbeef",
		ReportType:     "dependency_scanning",
		ArtifactKeys:   []string{"a/report.json"},
		TraversalIDs:   []int64{1, 42},
	})

	require.NoError(t, err)
	assert.Equal(t, projectID, in.ProjectID)
	assert.Equal(t, pipelineID, in.PipelineID)
	assert.Equal(t, scan.ReportTypeDependencyScanning, in.ReportType)
	assert.Equal(t, []int64{1, 42}, in.TraversalIDs)
}

func TestGroupInputFromPayload_BadID(t *testing.T) {
	_, err := groupInputFromPayload(ReportGroupPayload{
		ProjectID:      "not-a-uuid",
		OrganizationID: shared.NewID().String(),
		PipelineID:     shared.NewID().String(),
		ReportType:     "sast",
	})

	assert.Error(t, err)
}

func TestGroupInputFromPayload_UnknownReportType(t *testing.T) {
	_, err := groupInputFromPayload(ReportGroupPayload{
		ProjectID:      shared.NewID().String(),
		OrganizationID: shared.NewID().String(),
		PipelineID:     shared.NewID().String(),
		ReportType:     "coverage_fuzzing",
	})

	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
