package report

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/package-url/packageurl-go"
)

// Trivy-style properties carried on container scanning SBOM components.
const (
	propertySourcePackage  = "aquasecurity:trivy:SrcName"
	propertyPackageManager = "aquasecurity:trivy:PkgType"
)

var pypiNameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeComponentName normalizes a component name for dictionary
// deduplication. PyPI names are case- and separator-insensitive (PEP 503);
// other ecosystems are taken verbatim.
func NormalizeComponentName(purlType, name string) string {
	if purlType != "pypi" {
		return name
	}
	return pypiNameSeparators.ReplaceAllString(strings.ToLower(name), "-")
}

// FromCycloneDX decodes a CycloneDX JSON blob into a report carrying the
// component graph. Findings for SBOM artifacts arrive in the same envelope
// as other scanners and are merged by the caller.
func FromCycloneDX(blob []byte) (*Report, error) {
	var bom cdx.BOM
	decoder := cdx.NewBOMDecoder(bytes.NewReader(blob), cdx.BOMFileFormatJSON)
	if err := decoder.Decode(&bom); err != nil {
		return nil, fmt.Errorf("decode cyclonedx bom: %w", err)
	}

	r := &Report{}
	if bom.Metadata != nil && bom.Metadata.Tools != nil && bom.Metadata.Tools.Components != nil {
		for _, tool := range *bom.Metadata.Tools.Components {
			r.ScannerID = strings.ToLower(tool.Name)
			r.ScannerName = tool.Name
			break
		}
	}
	if r.ScannerID == "" {
		r.ScannerID = "cyclonedx"
		r.ScannerName = "CycloneDX"
	}

	if bom.Metadata != nil && bom.Metadata.Properties != nil {
		data := make(map[string]any, len(*bom.Metadata.Properties))
		for _, p := range *bom.Metadata.Properties {
			data[p.Name] = p.Value
		}
		if len(data) > 0 {
			r.Source = &Source{SourceType: "dependency_scanning", Data: data}
		}
	}

	if bom.Components == nil {
		return r, nil
	}

	for _, c := range *bom.Components {
		r.Components = append(r.Components, convertComponent(c))
	}
	return r, nil
}

func convertComponent(c cdx.Component) Component {
	comp := Component{
		Name:          c.Name,
		Version:       c.Version,
		ComponentType: string(c.Type),
	}

	if c.PackageURL != "" {
		if purl, err := packageurl.FromString(c.PackageURL); err == nil {
			comp.HasPurl = true
			comp.PurlType = purl.Type
			if purl.Namespace != "" {
				comp.Name = purl.Namespace + "/" + purl.Name
			} else {
				comp.Name = purl.Name
			}
			if purl.Version != "" {
				comp.Version = purl.Version
			}
		}
	}
	comp.NormalizedName = NormalizeComponentName(comp.PurlType, comp.Name)

	if c.Properties != nil {
		for _, p := range *c.Properties {
			switch p.Name {
			case propertySourcePackage:
				comp.SourcePackageName = p.Value
			case propertyPackageManager:
				comp.PackageManager = p.Value
			}
		}
	}

	if c.Licenses != nil {
		for _, lc := range *c.Licenses {
			lic := convertLicense(lc)
			if lic != nil {
				comp.Licenses = append(comp.Licenses, *lic)
			}
		}
	}

	return comp
}

// convertLicense maps a CycloneDX license choice onto a report license.
// Named licenses without an SPDX identifier are kept with a blank
// identifier: the component still declared them, and downstream resolution
// must not mistake it for an undeclared one. Expression-only entries are
// dropped.
func convertLicense(lc cdx.LicenseChoice) *License {
	if lc.License == nil {
		return nil
	}
	spdx := strings.TrimSpace(lc.License.ID)
	name := strings.TrimSpace(lc.License.Name)
	if spdx == "" && name == "" {
		return nil
	}
	if spdx == "" && strings.EqualFold(name, "unknown") {
		// Trivy emits unknown licenses by name only.
		return &License{Name: "unknown", SpdxIdentifier: "unknown", URL: lc.License.URL}
	}
	if name == "" {
		name = spdx
	}
	return &License{Name: name, SpdxIdentifier: spdx, URL: lc.License.URL}
}
