package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
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

// MockCheckpointStore is a mock implementation of CheckpointStore.
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) Load(ctx context.Context) (scan.Checkpoint, error) {
	args := m.Called(ctx)
	return args.Get(0).(scan.Checkpoint), args.Error(1)
}

func (m *MockCheckpointStore) Save(ctx context.Context, cp scan.Checkpoint) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockCheckpointStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func staleRows(n int, base time.Time) []scan.StaleRow {
	rows := make([]scan.StaleRow, n)
	for i := range rows {
		rows[i] = scan.StaleRow{ID: shared.NewID(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return rows
}

func purgeConfig() Config {
	return Config{MaxAge: 90 * 24 * time.Hour, BatchSize: 100, MaxPerRun: 200000}
}

func TestNewPurgeScansService_RejectsBadBounds(t *testing.T) {
	_, err := NewPurgeScansService(new(MockScanRepository), new(MockCheckpointStore), Config{}, logger.NewNop())

	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestPurgeScans_CompletesAndClearsCheckpoint(t *testing.T) {
	base := time.Now().Add(-100 * 24 * time.Hour)
	rows := staleRows(3, base)

	scans := new(MockScanRepository)
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, pagination.Keyset{}, 100).Return(rows, nil).Once()
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 100).Return([]scan.StaleRow{}, nil).Once()
	scans.On("MarkPurged", mock.Anything, mock.MatchedBy(func(ids []shared.ID) bool {
		return len(ids) == 3
	})).Return(int64(3), nil)

	checkpoints := new(MockCheckpointStore)
	checkpoints.On("Load", mock.Anything).Return(scan.Checkpoint{}, nil)
	last := rows[2]
	checkpoints.On("Save", mock.Anything, scan.Checkpoint{CreatedAt: last.CreatedAt, ID: last.ID}).Return(nil)
	checkpoints.On("Clear", mock.Anything).Return(nil)

	svc, err := NewPurgeScansService(scans, checkpoints, purgeConfig(), logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background()))

	checkpoints.AssertExpectations(t)
	scans.AssertExpectations(t)
}

func TestPurgeScans_ResumesFromCheckpoint(t *testing.T) {
	cp := scan.Checkpoint{CreatedAt: time.Now().Add(-95 * 24 * time.Hour), ID: shared.NewID()}

	scans := new(MockScanRepository)
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, pagination.Keyset{CreatedAt: cp.CreatedAt, ID: cp.ID}, 100).
		Return([]scan.StaleRow{}, nil).Once()

	checkpoints := new(MockCheckpointStore)
	checkpoints.On("Load", mock.Anything).Return(cp, nil)
	checkpoints.On("Clear", mock.Anything).Return(nil)

	svc, err := NewPurgeScansService(scans, checkpoints, purgeConfig(), logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background()))

	scans.AssertExpectations(t)
}

func TestPurgeScans_StopsAtPerRunCap(t *testing.T) {
	base := time.Now().Add(-100 * 24 * time.Hour)

	cfg := Config{MaxAge: 90 * 24 * time.Hour, BatchSize: 2, MaxPerRun: 3}

	scans := new(MockScanRepository)
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 2).
		Return(staleRows(2, base), nil).Once()
	// The final batch is trimmed so the cap is exact.
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 1).
		Return(staleRows(1, base.Add(time.Hour)), nil).Once()
	scans.On("MarkPurged", mock.Anything, mock.MatchedBy(func(ids []shared.ID) bool {
		return len(ids) == 2
	})).Return(int64(2), nil)
	scans.On("MarkPurged", mock.Anything, mock.MatchedBy(func(ids []shared.ID) bool {
		return len(ids) == 1
	})).Return(int64(1), nil)

	checkpoints := new(MockCheckpointStore)
	checkpoints.On("Load", mock.Anything).Return(scan.Checkpoint{}, nil)
	checkpoints.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc, err := NewPurgeScansService(scans, checkpoints, cfg, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background()))

	// The cap leaves the checkpoint for the next run.
	checkpoints.AssertNotCalled(t, "Clear", mock.Anything)
	scans.AssertExpectations(t)
}

func TestPurgeScans_CheckpointSavedPerBatch(t *testing.T) {
	base := time.Now().Add(-100 * 24 * time.Hour)
	first := staleRows(2, base)
	second := staleRows(2, base.Add(time.Hour))

	cfg := Config{MaxAge: 90 * 24 * time.Hour, BatchSize: 2, MaxPerRun: 100}

	scans := new(MockScanRepository)
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 2).Return(first, nil).Once()
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 2).Return(second, nil).Once()
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, 2).Return([]scan.StaleRow{}, nil).Once()
	scans.On("MarkPurged", mock.Anything, mock.Anything).Return(int64(2), nil)

	checkpoints := new(MockCheckpointStore)
	checkpoints.On("Load", mock.Anything).Return(scan.Checkpoint{}, nil)
	checkpoints.On("Save", mock.Anything, scan.Checkpoint{CreatedAt: first[1].CreatedAt, ID: first[1].ID}).Return(nil).Once()
	checkpoints.On("Save", mock.Anything, scan.Checkpoint{CreatedAt: second[1].CreatedAt, ID: second[1].ID}).Return(nil).Once()
	checkpoints.On("Clear", mock.Anything).Return(nil)

	svc, err := NewPurgeScansService(scans, checkpoints, cfg, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background()))

	checkpoints.AssertExpectations(t)
}

func TestPurgeScans_ListErrorPreservesCheckpoint(t *testing.T) {
	dbErr := errors.New("relation locked")

	scans := new(MockScanRepository)
	scans.On("ListStaleBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, dbErr)

	checkpoints := new(MockCheckpointStore)
	checkpoints.On("Load", mock.Anything).Return(scan.Checkpoint{}, nil)

	svc, err := NewPurgeScansService(scans, checkpoints, purgeConfig(), logger.NewNop())
	require.NoError(t, err)

	err = svc.Execute(context.Background())

	assert.ErrorIs(t, err, dbErr)
	checkpoints.AssertNotCalled(t, "Clear", mock.Anything)
}
