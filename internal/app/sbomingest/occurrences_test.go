package sbomingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
)

func occurrenceMapFixture(name, version string, projectID shared.ID) *sbom.OccurrenceMap {
	m := &sbom.OccurrenceMap{
		Name:           name,
		NormalizedName: name,
		PurlType:       "npm",
		HasPurl:        true,
		Version:        version,
		InputFilePath:  "package-lock.json",
		ProjectID:      projectID,
	}
	m.SetComponentID(shared.NewID())
	m.SetComponentVersionID(shared.NewID())
	return m
}

func TestIngestOccurrences_DropsInBatchDuplicates(t *testing.T) {
	projectID := shared.NewID()
	occurrenceID := shared.NewID()

	first := occurrenceMapFixture("lodash", "4.17.21", projectID)
	duplicate := &sbom.OccurrenceMap{
		Name:           "lodash",
		NormalizedName: "lodash",
		PurlType:       "npm",
		HasPurl:        true,
		Version:        "4.17.21",
		InputFilePath:  "package-lock.json",
		ProjectID:      projectID,
	}
	// Same identity tuple as the first map.
	duplicate.SetComponentID(first.ComponentID())
	duplicate.SetComponentVersionID(first.ComponentVersionID())

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1
	})).Return([]shared.ID{occurrenceID}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	licenses := new(MockPackageLicenseRepository)
	licenses.On("GetPackage", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{first, duplicate}}
	require.NoError(t, task.Execute(context.Background(), in))

	// The duplicate map is compacted out of the chain.
	require.Len(t, in.Maps, 1)
	assert.Equal(t, occurrenceID, in.Maps[0].OccurrenceID())
	repo.AssertExpectations(t)
}

func TestIngestOccurrences_RowsCarryPipelineContext(t *testing.T) {
	projectID := shared.NewID()
	pipelineID := shared.NewID()
	traversal := []int64{1, 42, 977}
	m := occurrenceMapFixture("lodash", "4.17.21", projectID)

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1 &&
			rows[0].PipelineID.Equals(pipelineID) &&
			rows[0].CommitSHA == "a1b2c3" &&
			assert.ObjectsAreEqual([]int64{1, 42, 977}, rows[0].TraversalIDs)
	})).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	licenses := new(MockPackageLicenseRepository)
	licenses.On("GetPackage", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{
		PipelineID:   pipelineID,
		CommitSHA:    "a1b2c3",
		TraversalIDs: traversal,
		Maps:         []*sbom.OccurrenceMap{m},
	}
	require.NoError(t, task.Execute(context.Background(), in))

	repo.AssertExpectations(t)
}

func TestIngestOccurrences_ReportLicensesWin(t *testing.T) {
	projectID := shared.NewID()
	m := occurrenceMapFixture("lodash", "4.17.21", projectID)
	m.ReportLicenses = []sbom.License{
		{Name: "MIT License", SpdxIdentifier: "MIT"},
		{Name: "something odd", SpdxIdentifier: sbom.UnknownLicenseSpdxID},
	}

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1 && len(rows[0].Licenses) == 1 && rows[0].Licenses[0].SpdxIdentifier == "MIT"
	})).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	// The declared licenses satisfy resolution without a database read.
	licenses := new(MockPackageLicenseRepository)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{m}}
	require.NoError(t, task.Execute(context.Background(), in))

	licenses.AssertNotCalled(t, "GetPackage", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestIngestOccurrences_DeclaredLicensesWithoutSpdxIDSuppressFallback(t *testing.T) {
	projectID := shared.NewID()
	m := occurrenceMapFixture("acme-sdk", "2.0.0", projectID)
	m.ReportLicenses = []sbom.License{
		{Name: "Custom EULA"},
	}

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1 && len(rows[0].Licenses) == 0
	})).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	// The report declared a license, so the assignment database must not
	// be consulted even though it could resolve this package.
	licenses := new(MockPackageLicenseRepository)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{m}}
	require.NoError(t, task.Execute(context.Background(), in))

	licenses.AssertNotCalled(t, "GetPackage", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestIngestOccurrences_AllUnknownLicensesCollapseToPlaceholder(t *testing.T) {
	projectID := shared.NewID()
	m := occurrenceMapFixture("mystery", "1.0.0", projectID)
	m.ReportLicenses = []sbom.License{
		{Name: "first", SpdxIdentifier: sbom.UnknownLicenseSpdxID},
		{Name: "second", SpdxIdentifier: sbom.UnknownLicenseSpdxID},
	}

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1 &&
			len(rows[0].Licenses) == 1 &&
			rows[0].Licenses[0].Name == "2 unknown licenses" &&
			rows[0].Licenses[0].SpdxIdentifier == sbom.UnknownLicenseSpdxID
	})).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(new(MockPackageLicenseRepository)), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{m}}
	require.NoError(t, task.Execute(context.Background(), in))

	repo.AssertExpectations(t)
}

func TestIngestOccurrences_NoPurlNoLicenses(t *testing.T) {
	projectID := shared.NewID()
	m := &sbom.OccurrenceMap{Name: "internal-lib", Version: "1.0.0", ProjectID: projectID}
	m.SetComponentID(shared.NewID())

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(rows []*sbom.Occurrence) bool {
		return len(rows) == 1 && rows[0].Licenses == nil
	})).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	licenses := new(MockPackageLicenseRepository)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{m}}
	require.NoError(t, task.Execute(context.Background(), in))

	// No purl means no license lookup and no vulnerability correlation.
	licenses.AssertNotCalled(t, "GetPackage", mock.Anything, mock.Anything, mock.Anything)
	vulns.AssertNotCalled(t, "IDsByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestOccurrences_CorrelatesVulnerabilities(t *testing.T) {
	projectID := shared.NewID()
	vulnID := shared.NewID()
	m := occurrenceMapFixture("lodash", "4.17.20", projectID)

	repo := new(MockOccurrenceRepository)
	repo.On("UpsertBatch", mock.Anything, mock.Anything).Return([]shared.ID{shared.NewID()}, nil)

	vulns := new(MockVulnerabilityRepository)
	vulns.On("IDsByLocation", mock.Anything, projectID, "package-lock.json", "lodash", "4.17.20").
		Return([]shared.ID{vulnID}, nil)

	licenses := new(MockPackageLicenseRepository)
	licenses.On("GetPackage", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	task, err := newIngestOccurrences(repo, vulns, NewLicenseResolver(licenses), logger.NewNop())
	require.NoError(t, err)

	in := &Input{Maps: []*sbom.OccurrenceMap{m}}
	require.NoError(t, task.Execute(context.Background(), in))

	require.Len(t, m.VulnerabilityIDs(), 1)
	assert.Equal(t, vulnID, m.VulnerabilityIDs()[0])
}

func TestIngestOccurrencesVulnerabilities_SyncsTouchedIDs(t *testing.T) {
	occurrenceID := shared.NewID()
	vulnID := shared.NewID()

	m := &sbom.OccurrenceMap{Name: "lodash"}
	m.SetOccurrenceID(occurrenceID)
	m.SetVulnerabilityIDs([]shared.ID{vulnID, vulnID})

	repo := new(MockOccurrenceVulnerabilityRepository)
	repo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(rows []sbom.OccurrenceVulnerability) bool {
		return len(rows) == 2 && rows[0].OccurrenceID == occurrenceID
	})).Return(int64(2), nil)

	syncer := new(MockVulnerabilitySyncer)
	syncer.On("EnqueueVulnerabilitySearchSync", mock.Anything, []shared.ID{vulnID}).Return(nil)

	task, err := newIngestOccurrencesVulnerabilities(repo, syncer, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, task.Execute(context.Background(), &Input{Maps: []*sbom.OccurrenceMap{m}}))

	syncer.AssertExpectations(t)
}

func TestIngestOccurrencesVulnerabilities_SkipsSyncWhenNothingWritten(t *testing.T) {
	m := &sbom.OccurrenceMap{Name: "lodash"}
	m.SetOccurrenceID(shared.NewID())
	m.SetVulnerabilityIDs([]shared.ID{shared.NewID()})

	// Every link already existed, so the search index is current.
	repo := new(MockOccurrenceVulnerabilityRepository)
	repo.On("InsertBatch", mock.Anything, mock.Anything).Return(int64(0), nil)

	syncer := new(MockVulnerabilitySyncer)

	task, err := newIngestOccurrencesVulnerabilities(repo, syncer, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, task.Execute(context.Background(), &Input{Maps: []*sbom.OccurrenceMap{m}}))

	syncer.AssertNotCalled(t, "EnqueueVulnerabilitySearchSync", mock.Anything, mock.Anything)
}

func TestIngestOccurrencesVulnerabilities_NoLinksNoWrites(t *testing.T) {
	m := &sbom.OccurrenceMap{Name: "lodash"}
	m.SetOccurrenceID(shared.NewID())

	repo := new(MockOccurrenceVulnerabilityRepository)
	syncer := new(MockVulnerabilitySyncer)

	task, err := newIngestOccurrencesVulnerabilities(repo, syncer, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, task.Execute(context.Background(), &Input{Maps: []*sbom.OccurrenceMap{m}}))

	repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}
