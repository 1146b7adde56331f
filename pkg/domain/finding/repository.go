package finding

import (
	"context"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Repository defines the interface for finding persistence.
type Repository interface {
	// InsertBatch inserts findings under their natural primary key.
	// A UUID collision within the same partition rejects the row rather
	// than merging it: findings are immutable once stored.
	InsertBatch(ctx context.Context, findings []*Finding) (int, error)

	// ExistingUUIDs returns the subset of uuids already stored, for
	// cross-report deduplication.
	ExistingUUIDs(ctx context.Context, uuids []string) (map[string]struct{}, error)

	// CountByScan returns the number of findings stored against a scan.
	CountByScan(ctx context.Context, scanID shared.ID) (int64, error)
}
