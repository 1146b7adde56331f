// Package sbom provides the SBOM ingestion domain model: deduplicated
// component dictionaries, per-pipeline occurrences, and their links to the
// vulnerability ledger.
package sbom

import (
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// License is a resolved license reference stored on an occurrence.
type License struct {
	Name           string `json:"name"`
	SpdxIdentifier string `json:"spdx_identifier"`
	URL            string `json:"url,omitempty"`
}

// UnknownLicenseName and UnknownLicenseSpdxID form the placeholder used when
// a report declares licenses but none of them is resolvable.
const (
	UnknownLicenseName   = "unknown licenses"
	UnknownLicenseSpdxID = "unknown"
)

// Component is a deduplicated (name, purl type) dictionary entry shared
// across all pipelines. Rows are created on first sight and never updated.
type Component struct {
	ID             shared.ID
	Name           string
	PurlType       string
	ComponentType  string
	OrganizationID shared.ID
}

// ComponentKey is the uniqueness key for component dictionary rows.
// The name is ecosystem-normalized (e.g. PEP 503 for pypi) so that case and
// separator variants of the same package collapse to one row.
type ComponentKey struct {
	Name     string
	PurlType string
}

// ComponentVersion is a (component, version) dictionary entry.
type ComponentVersion struct {
	ID          shared.ID
	ComponentID shared.ID
	Version     string
}

// ComponentVersionKey is the uniqueness key for component version rows.
type ComponentVersionKey struct {
	ComponentID shared.ID
	Version     string
}

// SourcePackage identifies an OS-level source package.
type SourcePackage struct {
	ID             shared.ID
	Name           string
	PurlType       string
	OrganizationID shared.ID
}

// SourcePackageKey is the uniqueness key for source package rows.
type SourcePackageKey struct {
	Name           string
	PurlType       string
	OrganizationID shared.ID
}

// Source captures the report-level context an occurrence was observed in
// (input file, image, operating system).
type Source struct {
	ID         shared.ID
	SourceType string
	Data       map[string]any
}

// Occurrence records a component's presence at a specific pipeline location.
// Identity is the (component, version, source, project) tuple; project and
// traversal ids are mutable metadata refreshed on re-ingestion, while
// pipeline-only fields are written at insert and left alone on conflict.
type Occurrence struct {
	ID                 shared.ID
	ProjectID          shared.ID
	PipelineID         shared.ID
	CommitSHA          string
	ComponentID        shared.ID
	ComponentVersionID shared.ID
	SourceID           shared.ID
	SourcePackageID    shared.ID
	ComponentName      string
	InputFilePath      string
	PackageManager     string
	Licenses           []License
	TraversalIDs       []int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UniqueKey returns the identity tuple used for conflict resolution and for
// in-batch duplicate discard.
func (o *Occurrence) UniqueKey() OccurrenceKey {
	return OccurrenceKey{
		ComponentID:        o.ComponentID,
		ComponentVersionID: o.ComponentVersionID,
		SourceID:           o.SourceID,
		SourcePackageID:    o.SourcePackageID,
		ProjectID:          o.ProjectID,
	}
}

// OccurrenceKey is the occurrence identity tuple.
type OccurrenceKey struct {
	ComponentID        shared.ID
	ComponentVersionID shared.ID
	SourceID           shared.ID
	SourcePackageID    shared.ID
	ProjectID          shared.ID
}

// OccurrenceVulnerability joins an occurrence to a vulnerability ledger entry.
type OccurrenceVulnerability struct {
	OccurrenceID    shared.ID
	VulnerabilityID shared.ID
}

// PackageLicense is the stored license assignment for a package: default
// license ids valid within [LowestVersion, HighestVersion], plus explicit
// per-version overrides checked in declaration order.
type PackageLicense struct {
	PurlType       string
	Name           string
	DefaultSpdxIDs []string
	LowestVersion  string
	HighestVersion string
	Other          []PackageLicenseOverride
}

// PackageLicenseOverride assigns licenses to explicitly listed versions.
type PackageLicenseOverride struct {
	SpdxIDs  []string
	Versions []string
}
