// Package vulnerability exposes the read-side interface to the persistent
// vulnerability ledger. The ledger itself is maintained elsewhere; ingestion
// only correlates occurrences against it.
package vulnerability

import (
	"context"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Repository looks up vulnerability ledger entries for correlation.
type Repository interface {
	// IDsByLocation returns the ids of vulnerabilities recorded for a
	// package at a file path within a project, matched on
	// (path, package name, version).
	IDsByLocation(ctx context.Context, projectID shared.ID, path, packageName, version string) ([]shared.ID, error)
}
