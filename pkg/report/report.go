// Package report provides the parsed security-report model produced from CI
// artifact blobs, plus the CycloneDX decoding used for SBOM artifacts.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// License as declared by the scanner for a component.
type License struct {
	Name           string `json:"name"`
	SpdxIdentifier string `json:"spdx_identifier"`
	URL            string `json:"url,omitempty"`
}

// Component is one SBOM component extracted from a CycloneDX document.
type Component struct {
	Name              string
	NormalizedName    string
	PurlType          string
	HasPurl           bool
	Version           string
	ComponentType     string
	PackageManager    string
	SourcePackageName string
	Licenses          []License
}

// Source is the report-level context components were observed in.
type Source struct {
	SourceType string
	Data       map[string]any
}

// InputFilePath returns the location the report was generated from, if the
// source carries one.
func (s *Source) InputFilePath() string {
	if s == nil {
		return ""
	}
	if p, ok := s.Data["input_file_path"].(string); ok {
		return p
	}
	return ""
}

// Location describes where a finding was detected.
type Location struct {
	File           string `json:"file,omitempty"`
	StartLine      int    `json:"start_line,omitempty"`
	EndLine        int    `json:"end_line,omitempty"`
	Image          string `json:"image,omitempty"`
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
}

// Identifier is an external reference attached to a finding.
type Identifier struct {
	Type  string `json:"type" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
	URL   string `json:"url,omitempty"`
}

// Finding is one parsed scanner finding. Validation tags express the
// scanner contract; findings failing it are filtered out, not fatal.
type Finding struct {
	UUID             string       `json:"uuid" validate:"required,uuid"`
	OverriddenUUID   string       `json:"overridden_uuid,omitempty" validate:"omitempty,uuid"`
	ScannerID        string       `json:"scanner_id" validate:"required"`
	Severity         string       `json:"severity" validate:"required,oneof=info unknown low medium high critical"`
	Name             string       `json:"name" validate:"required"`
	Description      string       `json:"description,omitempty"`
	Location         Location     `json:"location"`
	Identifiers      []Identifier `json:"identifiers,omitempty" validate:"dive"`
	Links            []string     `json:"links,omitempty"`
	Evidence         string       `json:"evidence,omitempty"`
	RemediationStart int64        `json:"remediation_byte_offset_start,omitempty"`
	RemediationEnd   int64        `json:"remediation_byte_offset_end,omitempty"`
}

// Report is a fully parsed security report.
type Report struct {
	ScannerID   string
	ScannerName string
	Findings    []Finding
	Components  []Component
	Source      *Source
}

var validate = validator.New()

// ValidFindings filters the report's findings down to contract-valid ones.
// Invalid entries are returned separately so callers can report them.
func (r *Report) ValidFindings() (valid []Finding, invalid []Finding) {
	for _, f := range r.Findings {
		if err := validate.Struct(f); err != nil {
			invalid = append(invalid, f)
			continue
		}
		valid = append(valid, f)
	}
	return valid, invalid
}

// securityJSON is the generic envelope shared by the non-SBOM scanner
// report artifacts.
type securityJSON struct {
	Scan struct {
		Scanner struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"scanner"`
	} `json:"scan"`
	Vulnerabilities []Finding `json:"vulnerabilities"`
}

// FromSecurityJSON parses a scanner report blob in the common security
// report envelope.
func FromSecurityJSON(blob []byte) (*Report, error) {
	var doc securityJSON
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("parse security report: %w", err)
	}
	if doc.Scan.Scanner.ID == "" {
		return nil, fmt.Errorf("parse security report: missing scanner id")
	}

	findings := doc.Vulnerabilities
	for i := range findings {
		if findings[i].ScannerID == "" {
			findings[i].ScannerID = doc.Scan.Scanner.ID
		}
	}

	return &Report{
		ScannerID:   doc.Scan.Scanner.ID,
		ScannerName: doc.Scan.Scanner.Name,
		Findings:    findings,
	}, nil
}
