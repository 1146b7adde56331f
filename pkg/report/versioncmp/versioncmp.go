// Package versioncmp compares package versions using the versioning dialect
// of the package's ecosystem. Pre-release ordering, epochs and numeric
// segment comparison follow each ecosystem's rules; a naive lexicographic
// compare would misorder versions like 2.2.2-alpha1 vs 2.2.2.
package versioncmp

import (
	"fmt"
	"strings"

	"deps.dev/util/semver"
	apk "github.com/knqyf263/go-apk-version"
	deb "github.com/knqyf263/go-deb-version"
	rpm "github.com/knqyf263/go-rpm-version"
)

// systems maps purl types onto deps.dev semver dialects.
var systems = map[string]semver.System{
	"npm":       semver.NPM,
	"pypi":      semver.PyPI,
	"gem":       semver.RubyGems,
	"maven":     semver.Maven,
	"golang":    semver.Go,
	"cargo":     semver.Cargo,
	"nuget":     semver.NuGet,
	"conan":     semver.DefaultSystem,
	"composer":  semver.DefaultSystem,
	"swift":     semver.DefaultSystem,
	"cocoapods": semver.DefaultSystem,
}

// Normalize adjusts a raw version string for its ecosystem: Go versions
// carry a mandatory v prefix, every other dialect drops a tolerated one.
func Normalize(purlType, version string) string {
	version = strings.TrimSpace(version)
	if purlType == "golang" {
		if version != "" && !strings.HasPrefix(version, "v") {
			return "v" + version
		}
		return version
	}
	return strings.TrimPrefix(version, "v")
}

// Compare returns -1, 0 or 1 ordering a against b under the purl type's
// versioning dialect. Malformed versions return an error so callers can
// fail safe instead of guessing.
func Compare(purlType, a, b string) (int, error) {
	a = Normalize(purlType, a)
	b = Normalize(purlType, b)

	switch purlType {
	case "deb":
		va, err := deb.NewVersion(a)
		if err != nil {
			return 0, fmt.Errorf("parse deb version %q: %w", a, err)
		}
		vb, err := deb.NewVersion(b)
		if err != nil {
			return 0, fmt.Errorf("parse deb version %q: %w", b, err)
		}
		return compareBool(va.LessThan(vb), va.GreaterThan(vb)), nil
	case "apk":
		va, err := apk.NewVersion(a)
		if err != nil {
			return 0, fmt.Errorf("parse apk version %q: %w", a, err)
		}
		vb, err := apk.NewVersion(b)
		if err != nil {
			return 0, fmt.Errorf("parse apk version %q: %w", b, err)
		}
		return compareBool(va.LessThan(vb), va.GreaterThan(vb)), nil
	case "rpm":
		va, vb := rpm.NewVersion(a), rpm.NewVersion(b)
		return compareBool(va.LessThan(vb), va.GreaterThan(vb)), nil
	}

	sys, ok := systems[purlType]
	if !ok {
		sys = semver.DefaultSystem
	}
	if _, err := sys.Parse(a); err != nil {
		return 0, fmt.Errorf("parse %s version %q: %w", purlType, a, err)
	}
	if _, err := sys.Parse(b); err != nil {
		return 0, fmt.Errorf("parse %s version %q: %w", purlType, b, err)
	}
	return sys.Compare(a, b), nil
}

func compareBool(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}
