package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOccurrenceUpsertQuery_PreservesTimestampOnIdempotentConflict(t *testing.T) {
	query := occurrenceUpsertQuery(2)

	// Re-running the same batch must not rewrite updated_at: the bump is
	// conditional on traversal ids actually differing.
	assert.Contains(t, query, "sbom_occurrences.traversal_ids IS DISTINCT FROM EXCLUDED.traversal_ids")
	assert.Contains(t, query, "ELSE sbom_occurrences.updated_at")

	// Pipeline columns never appear in the conflict-update set.
	updateSet := query[strings.Index(query, "DO UPDATE SET"):]
	assert.NotContains(t, updateSet, "pipeline_id =")
	assert.NotContains(t, updateSet, "commit_sha =")

	// Every row of the batch reports its id back, conflicting or not.
	assert.Contains(t, query, "RETURNING id")
	assert.Contains(t, query, "$15")
	assert.NotContains(t, query, "$29")
}
