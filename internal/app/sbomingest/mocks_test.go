package sbomingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// MockComponentRepository is a mock implementation of sbom.ComponentRepository.
type MockComponentRepository struct {
	mock.Mock
}

func (m *MockComponentRepository) UpsertBatch(ctx context.Context, rows []sbom.Component) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockComponentRepository) SelectIDs(ctx context.Context, keys []sbom.ComponentKey) (map[sbom.ComponentKey]shared.ID, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[sbom.ComponentKey]shared.ID), args.Error(1)
}

// MockComponentVersionRepository is a mock implementation of sbom.ComponentVersionRepository.
type MockComponentVersionRepository struct {
	mock.Mock
}

func (m *MockComponentVersionRepository) UpsertBatch(ctx context.Context, rows []sbom.ComponentVersion) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockComponentVersionRepository) SelectIDs(ctx context.Context, keys []sbom.ComponentVersionKey) (map[sbom.ComponentVersionKey]shared.ID, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[sbom.ComponentVersionKey]shared.ID), args.Error(1)
}

// MockSourcePackageRepository is a mock implementation of sbom.SourcePackageRepository.
type MockSourcePackageRepository struct {
	mock.Mock
}

func (m *MockSourcePackageRepository) UpsertBatch(ctx context.Context, rows []sbom.SourcePackage) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockSourcePackageRepository) SelectIDs(ctx context.Context, keys []sbom.SourcePackageKey) (map[sbom.SourcePackageKey]shared.ID, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[sbom.SourcePackageKey]shared.ID), args.Error(1)
}

// MockSourceRepository is a mock implementation of sbom.SourceRepository.
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) Upsert(ctx context.Context, src sbom.Source) (shared.ID, error) {
	args := m.Called(ctx, src)
	return args.Get(0).(shared.ID), args.Error(1)
}

// MockOccurrenceRepository is a mock implementation of sbom.OccurrenceRepository.
type MockOccurrenceRepository struct {
	mock.Mock
}

func (m *MockOccurrenceRepository) UpsertBatch(ctx context.Context, rows []*sbom.Occurrence) ([]shared.ID, error) {
	args := m.Called(ctx, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shared.ID), args.Error(1)
}

// MockOccurrenceVulnerabilityRepository is a mock implementation of
// sbom.OccurrenceVulnerabilityRepository.
type MockOccurrenceVulnerabilityRepository struct {
	mock.Mock
}

func (m *MockOccurrenceVulnerabilityRepository) InsertBatch(ctx context.Context, rows []sbom.OccurrenceVulnerability) (int64, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(int64), args.Error(1)
}

// MockPackageLicenseRepository is a mock implementation of sbom.PackageLicenseRepository.
type MockPackageLicenseRepository struct {
	mock.Mock
}

func (m *MockPackageLicenseRepository) GetPackage(ctx context.Context, purlType, name string) (*sbom.PackageLicense, error) {
	args := m.Called(ctx, purlType, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sbom.PackageLicense), args.Error(1)
}

func (m *MockPackageLicenseRepository) GetLicenses(ctx context.Context, spdxIDs []string) ([]sbom.License, error) {
	args := m.Called(ctx, spdxIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sbom.License), args.Error(1)
}

// MockVulnerabilityRepository is a mock implementation of vulnerability.Repository.
type MockVulnerabilityRepository struct {
	mock.Mock
}

func (m *MockVulnerabilityRepository) IDsByLocation(ctx context.Context, projectID shared.ID, path, packageName, version string) ([]shared.ID, error) {
	args := m.Called(ctx, projectID, path, packageName, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shared.ID), args.Error(1)
}

// MockVulnerabilitySyncer is a mock implementation of VulnerabilitySyncer.
type MockVulnerabilitySyncer struct {
	mock.Mock
}

func (m *MockVulnerabilitySyncer) EnqueueVulnerabilitySearchSync(ctx context.Context, ids []shared.ID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}
