package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openctemio/ingest/pkg/domain/finding"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/pagination"
)

// MockScanRepository is a mock implementation of scan.Repository.
type MockScanRepository struct {
	mock.Mock
}

func (m *MockScanRepository) Create(ctx context.Context, sc *scan.Scan) error {
	args := m.Called(ctx, sc)
	return args.Error(0)
}

func (m *MockScanRepository) GetByPipelineAndArtifact(ctx context.Context, pipelineID shared.ID, reportType scan.ReportType, artifactKey string) (*scan.Scan, error) {
	args := m.Called(ctx, pipelineID, reportType, artifactKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scan.Scan), args.Error(1)
}

func (m *MockScanRepository) HasFindings(ctx context.Context, scanID shared.ID) (bool, error) {
	args := m.Called(ctx, scanID)
	return args.Bool(0), args.Error(1)
}

func (m *MockScanRepository) UpdateStatus(ctx context.Context, scanID shared.ID, status scan.Status) error {
	args := m.Called(ctx, scanID, status)
	return args.Error(0)
}

func (m *MockScanRepository) ListStaleBatch(ctx context.Context, cutoff time.Time, cursor pagination.Keyset, limit int) ([]scan.StaleRow, error) {
	args := m.Called(ctx, cutoff, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scan.StaleRow), args.Error(1)
}

func (m *MockScanRepository) MarkPurged(ctx context.Context, ids []shared.ID) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

// MockFindingRepository is a mock implementation of finding.Repository.
type MockFindingRepository struct {
	mock.Mock
}

func (m *MockFindingRepository) InsertBatch(ctx context.Context, findings []*finding.Finding) (int, error) {
	args := m.Called(ctx, findings)
	return args.Int(0), args.Error(1)
}

func (m *MockFindingRepository) ExistingUUIDs(ctx context.Context, uuids []string) (map[string]struct{}, error) {
	args := m.Called(ctx, uuids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockFindingRepository) CountByScan(ctx context.Context, scanID shared.ID) (int64, error) {
	args := m.Called(ctx, scanID)
	return args.Get(0).(int64), args.Error(1)
}

// MockArtifactStore is a mock implementation of ArtifactStore.
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArtifactStore) ClearPrefix(prefix string) {
	m.Called(prefix)
}

// MockLease is a mock implementation of Lease.
type MockLease struct {
	mock.Mock
}

func (m *MockLease) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLeaseAcquirer is a mock implementation of LeaseAcquirer.
type MockLeaseAcquirer struct {
	mock.Mock
}

func (m *MockLeaseAcquirer) Acquire(ctx context.Context, key string) (Lease, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Lease), args.Error(1)
}

// MockReadyMarker is a mock implementation of ReadyMarker.
type MockReadyMarker struct {
	mock.Mock
}

func (m *MockReadyMarker) MarkReady(ctx context.Context, pipelineID shared.ID, reportType string) error {
	args := m.Called(ctx, pipelineID, reportType)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) EnqueueSecretRevocationScan(ctx context.Context, projectID, pipelineID shared.ID) error {
	args := m.Called(ctx, projectID, pipelineID)
	return args.Error(0)
}
