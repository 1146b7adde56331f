package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

func TestKeysetAfter(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idLow := shared.MustIDFromString("00000000-0000-0000-0000-000000000001")
	idHigh := shared.MustIDFromString("ffffffff-0000-0000-0000-000000000001")

	cursor := Keyset{CreatedAt: base, ID: idLow}

	assert.True(t, cursor.After(base.Add(time.Second), idLow), "later timestamp sorts after")
	assert.False(t, cursor.After(base.Add(-time.Second), idHigh), "earlier timestamp sorts before")
	assert.True(t, cursor.After(base, idHigh), "same timestamp, higher id sorts after")
	assert.False(t, cursor.After(base, idLow), "cursor position itself is not after")
}

func TestKeysetAdvance(t *testing.T) {
	var cursor Keyset
	assert.True(t, cursor.IsZero())

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := shared.NewID()
	cursor = cursor.Advance(at, id)

	assert.False(t, cursor.IsZero())
	assert.Equal(t, at, cursor.CreatedAt)
	assert.Equal(t, id, cursor.ID)
}
