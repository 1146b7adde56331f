package sbomingest

import (
	"github.com/openctemio/ingest/pkg/domain/sbom"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/report"
)

// BuildOccurrenceMaps converts a parsed SBOM report into the occurrence maps
// the ingestion chain runs over. One map per report component; components
// repeated in the report produce repeated maps and are collapsed later, at
// the occurrence stage.
func BuildOccurrenceMaps(rep *report.Report, projectID, organizationID shared.ID) []*sbom.OccurrenceMap {
	inputFilePath := rep.Source.InputFilePath()

	maps := make([]*sbom.OccurrenceMap, 0, len(rep.Components))
	for _, c := range rep.Components {
		maps = append(maps, &sbom.OccurrenceMap{
			Name:              c.Name,
			NormalizedName:    c.NormalizedName,
			PurlType:          c.PurlType,
			HasPurl:           c.HasPurl,
			Version:           c.Version,
			ComponentType:     c.ComponentType,
			PackageManager:    c.PackageManager,
			InputFilePath:     inputFilePath,
			SourcePackageName: c.SourcePackageName,
			ReportLicenses:    convertLicenses(c.Licenses),
			ProjectID:         projectID,
			OrganizationID:    organizationID,
		})
	}
	return maps
}

// ConvertSource maps the report source context onto its persistence shape.
func ConvertSource(src *report.Source) *sbom.Source {
	if src == nil {
		return nil
	}
	return &sbom.Source{
		SourceType: src.SourceType,
		Data:       src.Data,
	}
}

func convertLicenses(in []report.License) []sbom.License {
	if len(in) == 0 {
		return nil
	}
	out := make([]sbom.License, len(in))
	for i, l := range in {
		out[i] = sbom.License{
			Name:           l.Name,
			SpdxIdentifier: l.SpdxIdentifier,
			URL:            l.URL,
		}
	}
	return out
}
