// Package pagination provides keyset pagination utilities for resumable
// batch scans over large tables.
package pagination

import (
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Keyset is a (created_at, id) cursor. Rows strictly after the cursor in
// (created_at, id) order belong to the next batch. Unlike offset
// pagination this stays correct under concurrent writes and avoids
// re-scanning rows already processed.
type Keyset struct {
	CreatedAt time.Time
	ID        shared.ID
}

// IsZero reports whether the cursor is unset (scan from the beginning).
func (k Keyset) IsZero() bool {
	return k.CreatedAt.IsZero() && k.ID.IsZero()
}

// After reports whether a row at (createdAt, id) sorts strictly after the
// cursor. The id is only a tiebreaker for identical timestamps.
func (k Keyset) After(createdAt time.Time, id shared.ID) bool {
	if createdAt.After(k.CreatedAt) {
		return true
	}
	if createdAt.Equal(k.CreatedAt) {
		return id.String() > k.ID.String()
	}
	return false
}

// Advance returns the cursor positioned at (createdAt, id).
func (k Keyset) Advance(createdAt time.Time, id shared.ID) Keyset {
	return Keyset{CreatedAt: createdAt, ID: id}
}
