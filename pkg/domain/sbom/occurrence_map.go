package sbom

import (
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// OccurrenceMap is the transient carrier threaded through the ingestion task
// chain. It pairs a report component with the foreign ids each stage
// resolves. Id fields are write-once: a second assignment is ignored so a
// re-run of a stage cannot clobber ids already fanned out. Maps are never
// persisted and do not survive past a single ingestion call.
type OccurrenceMap struct {
	// Report-side input, fixed at construction.
	Name              string
	NormalizedName    string
	PurlType          string
	HasPurl           bool
	Version           string
	ComponentType     string
	PackageManager    string
	InputFilePath     string
	SourcePackageName string
	ReportLicenses    []License

	ProjectID      shared.ID
	OrganizationID shared.ID

	// Progressively assigned by the ingestion stages.
	componentID        shared.ID
	componentVersionID shared.ID
	sourceID           shared.ID
	sourcePackageID    shared.ID
	occurrenceID       shared.ID
	vulnerabilityIDs   []shared.ID
}

// ComponentLookupKey returns the dictionary key the component stage resolves.
func (m *OccurrenceMap) ComponentLookupKey() ComponentKey {
	return ComponentKey{Name: m.NormalizedName, PurlType: m.PurlType}
}

// SetComponentID assigns the resolved component id. No-op when already set.
func (m *OccurrenceMap) SetComponentID(id shared.ID) {
	if m.componentID.IsZero() {
		m.componentID = id
	}
}

// ComponentID returns the resolved component id.
func (m *OccurrenceMap) ComponentID() shared.ID { return m.componentID }

// SetComponentVersionID assigns the resolved version id. No-op when already set.
func (m *OccurrenceMap) SetComponentVersionID(id shared.ID) {
	if m.componentVersionID.IsZero() {
		m.componentVersionID = id
	}
}

// ComponentVersionID returns the resolved component version id.
func (m *OccurrenceMap) ComponentVersionID() shared.ID { return m.componentVersionID }

// SetSourceID assigns the report source id. No-op when already set.
func (m *OccurrenceMap) SetSourceID(id shared.ID) {
	if m.sourceID.IsZero() {
		m.sourceID = id
	}
}

// SourceID returns the report source id.
func (m *OccurrenceMap) SourceID() shared.ID { return m.sourceID }

// SetSourcePackageID assigns the resolved source package id. No-op when already set.
func (m *OccurrenceMap) SetSourcePackageID(id shared.ID) {
	if m.sourcePackageID.IsZero() {
		m.sourcePackageID = id
	}
}

// SourcePackageID returns the resolved source package id.
func (m *OccurrenceMap) SourcePackageID() shared.ID { return m.sourcePackageID }

// SetOccurrenceID assigns the persisted occurrence id. No-op when already set.
func (m *OccurrenceMap) SetOccurrenceID(id shared.ID) {
	if m.occurrenceID.IsZero() {
		m.occurrenceID = id
	}
}

// OccurrenceID returns the persisted occurrence id.
func (m *OccurrenceMap) OccurrenceID() shared.ID { return m.occurrenceID }

// SetVulnerabilityIDs attaches the correlated vulnerability ids.
// No-op when already set.
func (m *OccurrenceMap) SetVulnerabilityIDs(ids []shared.ID) {
	if m.vulnerabilityIDs == nil {
		m.vulnerabilityIDs = ids
	}
}

// VulnerabilityIDs returns the correlated vulnerability ids.
func (m *OccurrenceMap) VulnerabilityIDs() []shared.ID { return m.vulnerabilityIDs }
