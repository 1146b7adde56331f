package report

import (
	"github.com/openctemio/ingest/pkg/domain/scan"
)

// scannerPrecedence orders scanners within one report type. Artifacts are
// processed in this order so the accumulated set of known finding uuids,
// and therefore every deduplication decision, is reproducible regardless of
// artifact arrival order. Scanners not listed sort after listed ones,
// alphabetically by id.
var scannerPrecedence = map[scan.ReportType][]string{
	scan.ReportTypeSAST: {
		"semgrep",
		"bandit",
		"brakeman",
		"spotbugs",
	},
	scan.ReportTypeDependencyScanning: {
		"gemnasium",
		"gemnasium-maven",
		"gemnasium-python",
	},
	scan.ReportTypeContainerScanning: {
		"trivy",
		"grype",
	},
	scan.ReportTypeSecretDetection: {
		"gitleaks",
		"secrets",
	},
	scan.ReportTypeCycloneDX: {
		"gemnasium",
		"trivy",
		"cyclonedx",
	},
}

// ScannerOrder returns the sort rank of a scanner within a report type.
func ScannerOrder(reportType scan.ReportType, scannerID string) int {
	order := scannerPrecedence[reportType]
	for i, id := range order {
		if id == scannerID {
			return i
		}
	}
	return len(order)
}
