package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/finding"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
)

func securityBlob(scannerID string, uuids ...string) []byte {
	doc := fmt.Sprintf(`{"scan":{"scanner":{"id":%q,"name":%q}},"vulnerabilities":[`, scannerID, scannerID)
	for i, uuid := range uuids {
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`{"uuid":%q,"scanner_id":%q,"severity":"high","name":"finding"}`, uuid, scannerID)
	}
	return []byte(doc + "]}")
}

type groupFixture struct {
	scans     *MockScanRepository
	artifacts *MockArtifactStore
	leases    *MockLeaseAcquirer
	lease     *MockLease
	state     *MockReadyMarker
	notifier  *MockNotifier
	findings  *MockFindingRepository
	svc       *StoreGroupedScansService
}

func newGroupFixture(t *testing.T) *groupFixture {
	t.Helper()
	f := &groupFixture{
		scans:     new(MockScanRepository),
		artifacts: new(MockArtifactStore),
		leases:    new(MockLeaseAcquirer),
		lease:     new(MockLease),
		state:     new(MockReadyMarker),
		notifier:  new(MockNotifier),
		findings:  new(MockFindingRepository),
	}

	findingsSvc, err := NewStoreFindingsService(f.scans, f.findings, 50, logger.NewNop())
	require.NoError(t, err)

	f.svc, err = NewStoreGroupedScansService(
		f.scans, f.artifacts, f.leases, f.state, f.notifier,
		findingsSvc, nil, logger.NewNop(),
	)
	require.NoError(t, err)
	return f
}

func (f *groupFixture) expectHappyInfra(in *GroupInput) {
	key := fmt.Sprintf("store_grouped_scans:%s:%s", in.PipelineID, in.ReportType)
	f.leases.On("Acquire", mock.Anything, key).Return(f.lease, nil)
	f.lease.On("Release", mock.Anything).Return(nil)
	f.state.On("MarkReady", mock.Anything, in.PipelineID, in.ReportType.String()).Return(nil)
	for _, k := range in.ArtifactKeys {
		f.artifacts.On("ClearPrefix", k).Return()
	}
}

func groupInput(reportType scan.ReportType, keys ...string) *GroupInput {
	return &GroupInput{
		ProjectID:      shared.NewID(),
		OrganizationID: shared.NewID(),
		PipelineID:     shared.NewID(),
		CommitSHA:      "deadbeef",
		ReportType:     reportType,
		ArtifactKeys:   keys,
	}
}

func TestStoreGroupedScans_LeaseHeld(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSAST, "a/report.json")

	f.leases.On("Acquire", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("lease busy: %w", shared.ErrLeaseHeld))

	err := f.svc.Execute(context.Background(), in)

	assert.ErrorIs(t, err, shared.ErrLeaseHeld)
	// The lease was never held, so nothing else may run.
	f.artifacts.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.state.AssertNotCalled(t, "MarkReady", mock.Anything, mock.Anything, mock.Anything)
}

func TestStoreGroupedScans_FoldDeduplicatesAcrossArtifacts(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSAST, "a/bandit.json", "a/semgrep.json")
	sharedUUID := "0191b49a-5b0a-7a3e-8f6d-111111111111"

	// Delivery order is bandit first, but semgrep ranks first in the
	// precedence table, so semgrep's copy wins and bandit's duplicates.
	f.artifacts.On("Fetch", mock.Anything, "a/bandit.json").Return(securityBlob("bandit", sharedUUID), nil)
	f.artifacts.On("Fetch", mock.Anything, "a/semgrep.json").Return(securityBlob("semgrep", sharedUUID), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.scans.On("HasFindings", mock.Anything, mock.Anything).Return(false, nil)
	f.scans.On("UpdateStatus", mock.Anything, mock.Anything, scan.StatusSucceeded).Return(nil)

	f.findings.On("InsertBatch", mock.Anything, mock.MatchedBy(func(rows []*finding.Finding) bool {
		return len(rows) == 1 && rows[0].ScannerID == "semgrep" && !rows[0].Deduplicated
	})).Return(1, nil).Once()
	f.findings.On("InsertBatch", mock.Anything, mock.MatchedBy(func(rows []*finding.Finding) bool {
		return len(rows) == 1 && rows[0].ScannerID == "bandit" && rows[0].Deduplicated
	})).Return(1, nil).Once()

	require.NoError(t, f.svc.Execute(context.Background(), in))

	f.findings.AssertExpectations(t)
	f.lease.AssertExpectations(t)
	f.state.AssertExpectations(t)

	// Duration is recorded against the group's report type.
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.ReportGroupDuration), 1)
}

func TestStoreGroupedScans_ParseErrorSkipsArtifact(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSAST, "a/broken.json", "a/semgrep.json")
	uuid := "0191b49a-5b0a-7a3e-8f6d-111111111111"

	f.artifacts.On("Fetch", mock.Anything, "a/broken.json").Return([]byte("not json"), nil)
	f.artifacts.On("Fetch", mock.Anything, "a/semgrep.json").Return(securityBlob("semgrep", uuid), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.scans.On("HasFindings", mock.Anything, mock.Anything).Return(false, nil)
	f.scans.On("UpdateStatus", mock.Anything, mock.Anything, scan.StatusSucceeded).Return(nil)
	f.findings.On("InsertBatch", mock.Anything, mock.Anything).Return(1, nil).Once()

	// A broken artifact does not fail the group.
	require.NoError(t, f.svc.Execute(context.Background(), in))

	f.findings.AssertExpectations(t)
	f.state.AssertExpectations(t)
}

func TestStoreGroupedScans_CleanupRunsOnStoreFailure(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSAST, "a/semgrep.json")
	uuid := "0191b49a-5b0a-7a3e-8f6d-111111111111"
	dbErr := errors.New("connection refused")

	f.artifacts.On("Fetch", mock.Anything, "a/semgrep.json").Return(securityBlob("semgrep", uuid), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.scans.On("HasFindings", mock.Anything, mock.Anything).Return(false, dbErr)
	f.scans.On("UpdateStatus", mock.Anything, mock.Anything, scan.StatusFailed).Return(nil)

	err := f.svc.Execute(context.Background(), in)

	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	// Ready marker, cache release, and lease release run regardless.
	f.state.AssertExpectations(t)
	f.artifacts.AssertCalled(t, "ClearPrefix", "a/semgrep.json")
	f.lease.AssertExpectations(t)
}

func TestStoreGroupedScans_SecretDetectionTriggersRevocation(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSecretDetection, "a/gitleaks.json")
	uuid := "0191b49a-5b0a-7a3e-8f6d-111111111111"

	f.artifacts.On("Fetch", mock.Anything, "a/gitleaks.json").Return(securityBlob("gitleaks", uuid), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.scans.On("HasFindings", mock.Anything, mock.Anything).Return(false, nil)
	f.scans.On("UpdateStatus", mock.Anything, mock.Anything, scan.StatusSucceeded).Return(nil)
	f.findings.On("InsertBatch", mock.Anything, mock.Anything).Return(1, nil)

	f.notifier.On("EnqueueSecretRevocationScan", mock.Anything, in.ProjectID, in.PipelineID).Return(nil)

	require.NoError(t, f.svc.Execute(context.Background(), in))

	f.notifier.AssertExpectations(t)
}

func TestStoreGroupedScans_NoRevocationWithoutNewFindings(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSecretDetection, "a/gitleaks.json")

	f.artifacts.On("Fetch", mock.Anything, "a/gitleaks.json").Return(securityBlob("gitleaks"), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.scans.On("HasFindings", mock.Anything, mock.Anything).Return(false, nil)
	f.scans.On("UpdateStatus", mock.Anything, mock.Anything, scan.StatusSucceeded).Return(nil)

	require.NoError(t, f.svc.Execute(context.Background(), in))

	f.notifier.AssertNotCalled(t, "EnqueueSecretRevocationScan", mock.Anything, mock.Anything, mock.Anything)
}

func TestStoreGroupedScans_ExistingScanWithFindingsIsSkipped(t *testing.T) {
	f := newGroupFixture(t)
	in := groupInput(scan.ReportTypeSAST, "a/semgrep.json")
	uuid := "0191b49a-5b0a-7a3e-8f6d-111111111111"

	existing, err := scan.NewScan(in.ProjectID, in.PipelineID, in.ReportType, "semgrep", "a/semgrep.json")
	require.NoError(t, err)

	f.artifacts.On("Fetch", mock.Anything, "a/semgrep.json").Return(securityBlob("semgrep", uuid), nil)
	f.expectHappyInfra(in)

	f.scans.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists)
	f.scans.On("GetByPipelineAndArtifact", mock.Anything, in.PipelineID, in.ReportType, "a/semgrep.json").
		Return(existing, nil)
	f.scans.On("HasFindings", mock.Anything, existing.ID).Return(true, nil)

	// A redelivered group is idempotent, not an error.
	require.NoError(t, f.svc.Execute(context.Background(), in))

	f.findings.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
	f.scans.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
