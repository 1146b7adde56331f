package scan

import (
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// Checkpoint is the resumable purge cursor: the (created_at, id) keyset
// tuple of the last row in the last fully processed batch. It only ever
// advances forward; absence means start from the beginning.
type Checkpoint struct {
	CreatedAt time.Time `json:"created_at"`
	ID        shared.ID `json:"id"`
}

// IsZero reports whether the checkpoint is unset.
func (c Checkpoint) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID.IsZero()
}
