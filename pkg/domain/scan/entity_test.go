package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

func TestNewScan(t *testing.T) {
	sc, err := NewScan(shared.NewID(), shared.NewID(), ReportTypeSAST, "semgrep", "artifacts/1/sast.json")
	require.NoError(t, err)

	assert.False(t, sc.ID.IsZero())
	assert.Equal(t, StatusCreated, sc.Status)
	assert.False(t, sc.Purged())
}

func TestNewScan_Validation(t *testing.T) {
	_, err := NewScan(shared.ID{}, shared.NewID(), ReportTypeSAST, "semgrep", "k")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewScan(shared.NewID(), shared.NewID(), ReportType("malware_scanning"), "x", "k")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewScan(shared.NewID(), shared.NewID(), ReportTypeSAST, "semgrep", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransition(t *testing.T) {
	sc, err := NewScan(shared.NewID(), shared.NewID(), ReportTypeSAST, "semgrep", "k")
	require.NoError(t, err)

	require.NoError(t, sc.Transition(StatusSucceeded))
	require.NoError(t, sc.Transition(StatusPurged))
	assert.True(t, sc.Purged())

	// Purged is terminal.
	err = sc.Transition(StatusSucceeded)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTransition_SkippingTerminalStateIsRejected(t *testing.T) {
	sc, err := NewScan(shared.NewID(), shared.NewID(), ReportTypeSAST, "semgrep", "k")
	require.NoError(t, err)

	err = sc.Transition(StatusPurged)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, StatusCreated, sc.Status)
}

func TestParseReportType(t *testing.T) {
	for _, rt := range ReportTypes() {
		parsed, err := ParseReportType(string(rt))
		require.NoError(t, err)
		assert.Equal(t, rt, parsed)
	}

	_, err := ParseReportType("coverage_fuzzing")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
