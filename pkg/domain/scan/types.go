package scan

import (
	"github.com/openctemio/ingest/pkg/domain/shared"
)

// ReportType identifies the kind of security report a scan was produced from.
type ReportType string

// Supported report types. The set is closed: dispatch tables over report
// types are validated for completeness at startup.
const (
	ReportTypeSAST               ReportType = "sast"
	ReportTypeDependencyScanning ReportType = "dependency_scanning"
	ReportTypeContainerScanning  ReportType = "container_scanning"
	ReportTypeSecretDetection    ReportType = "secret_detection"
	ReportTypeCycloneDX          ReportType = "cyclonedx"
)

// ReportTypes lists every supported report type in processing order.
func ReportTypes() []ReportType {
	return []ReportType{
		ReportTypeSAST,
		ReportTypeDependencyScanning,
		ReportTypeContainerScanning,
		ReportTypeSecretDetection,
		ReportTypeCycloneDX,
	}
}

// ParseReportType parses a report type string.
// Unknown values return a typed error so the boundary can catch it
// specifically, distinct from generic runtime errors.
func ParseReportType(s string) (ReportType, error) {
	for _, rt := range ReportTypes() {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", shared.NewDomainError("UNKNOWN_REPORT_TYPE", "unsupported report type: "+s, shared.ErrInvalidInput)
}

// String returns the string representation of the report type.
func (rt ReportType) String() string {
	return string(rt)
}

// Status represents the lifecycle state of a scan.
type Status string

// Scan statuses. Transitions are monotonic:
// created -> {succeeded, failed} -> purged.
const (
	StatusCreated   Status = "created"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPurged    Status = "purged"
)

// CanTransitionTo reports whether the status may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusSucceeded || next == StatusFailed
	case StatusSucceeded, StatusFailed:
		return next == StatusPurged
	default:
		return false
	}
}
