package versioncmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		purlType string
		a, b     string
		want     int
	}{
		{"npm", "2.2.2-alpha1", "2.2.2", -1},
		{"npm", "1.10.0", "1.9.0", 1},
		{"npm", "1.0.0", "1.0.0", 0},
		{"gem", "4.0.0.beta1", "4.0.0", -1},
		{"maven", "1.0-SNAPSHOT", "1.0", -1},
		{"golang", "v0.0.1", "0.0.3", -1},
		{"golang", "1.2.0", "v1.2.0", 0},
		{"deb", "1:1.2.3-1", "1.2.4-1", 1},
		{"apk", "1.2.4-r2", "1.2.4-r10", -1},
		{"rpm", "0:1.0-1.el7", "1.1-1.el7", -1},
		{"unknownsystem", "1.2.3", "1.10.0", -1},
	}

	for _, tt := range tests {
		got, err := Compare(tt.purlType, tt.a, tt.b)
		require.NoError(t, err, "%s: %s vs %s", tt.purlType, tt.a, tt.b)
		assert.Equal(t, tt.want, got, "%s: %s vs %s", tt.purlType, tt.a, tt.b)
	}
}

func TestCompareMalformed(t *testing.T) {
	_, err := Compare("npm", "not a version", "1.0.0")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "v1.2.3", Normalize("golang", "1.2.3"))
	assert.Equal(t, "1.2.3", Normalize("npm", "v1.2.3"))
	assert.Equal(t, "v1.2.3", Normalize("golang", "v1.2.3"))
}
