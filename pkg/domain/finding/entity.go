// Package finding provides the security finding domain model.
package finding

import (
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Severity levels, lowest to highest.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = "unknown"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// State of a finding within the vulnerability workflow.
type State string

const (
	StateDetected  State = "detected"
	StateConfirmed State = "confirmed"
	StateDismissed State = "dismissed"
	StateResolved  State = "resolved"
)

// Location describes where a finding was detected.
type Location struct {
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	Image     string `json:"image,omitempty"`
	// Package coordinates for dependency and container findings.
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
}

// Identifier is an external reference (CVE, CWE, scanner rule id).
type Identifier struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
	URL   string `json:"url,omitempty"`
}

// Data is the opaque finding payload stored alongside the row.
type Data struct {
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	Location         Location     `json:"location"`
	Identifiers      []Identifier `json:"identifiers,omitempty"`
	Links            []string     `json:"links,omitempty"`
	Evidence         string       `json:"evidence,omitempty"`
	RemediationStart int64        `json:"remediation_byte_offset_start,omitempty"`
	RemediationEnd   int64        `json:"remediation_byte_offset_end,omitempty"`
}

// Finding is a single detected issue within a scan.
// The UUID is a content hash, stable across re-scans of identical content;
// rows are immutable once stored.
type Finding struct {
	UUID           string
	OverriddenUUID string
	ScanID         shared.ID
	ScannerID      string
	Severity       Severity
	State          State
	Deduplicated   bool
	Data           Data
	CreatedAt      time.Time
}
