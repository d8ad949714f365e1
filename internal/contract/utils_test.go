package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlainLabel(t *testing.T) {
	tests := []struct {
		input    schema.DoseRateClamp
		expected string
	}{
		{schema.ClampFloor, "Floor"},
		{schema.ClampCeiling, "Ceiling"},
		{schema.ClampBottleneck, "Bottleneck"},
		{schema.ClampDegenerate, "Degenerate"},
		{schema.ClampUnavailable, "Unavailable"},
		{"other", "other"},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetPlainLabel(tt.input))
		})
	}
}

func TestGetColorLabel(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	label := GetColorLabel(schema.ClampCeiling)
	assert.Contains(t, label, "Ceiling")
	assert.Contains(t, label, "\x1b[")

	assert.Equal(t, "custom", GetColorLabel("custom"))
}

func TestSelectOutputFile(t *testing.T) {
	f, err := SelectOutputFile("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, f)

	path := filepath.Join(t.TempDir(), "out.csv")
	f, err = SelectOutputFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, path, f.Name())
}

func TestDBFilePaths(t *testing.T) {
	assert.True(t, strings.HasSuffix(GetCacheDBFilePath(), ".scantime_cache.db"))
	assert.True(t, strings.HasSuffix(GetHistoryDBFilePath(), ".scantime_history.db"))
	assert.NotEqual(t, GetCacheDBFilePath(), GetHistoryDBFilePath())
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		maxWidth int
		expected string
	}{
		{"short path", "RP.1.dcm", 20, "RP.1.dcm"},
		{"exact width", "abcdef", 6, "abcdef"},
		{"truncated", "/plans/patient/RP.1.dcm", 10, "...P.1.dcm"},
		{"tiny width untouched", "abcdef", 3, "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncatePath(tt.path, tt.maxWidth))
		})
	}
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}
