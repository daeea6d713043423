package orabridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/go-orabridge/nca"
)

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"fetch_array_size": "250",
		"max_rows":         10,
		"fetch_as_string":  "number, clob",
		"fetch_as_buffer":  []string{"blob"},
		"out_format":       "object",
		"workers":          3,
		"log_level":        "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(250), cfg.FetchArraySize)
	assert.Equal(t, uint32(10), cfg.MaxRows)
	assert.Equal(t, []nca.DBType{nca.DBTypeNumber, nca.DBTypeClob}, cfg.FetchAsString)
	assert.Equal(t, []nca.DBType{nca.DBTypeBlob}, cfg.FetchAsBuffer)
	assert.Equal(t, OutFormatObject, cfg.OutFormat)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint32(DefaultMaxOutSize), cfg.DefaultMaxOutSize, "unset keys keep their defaults")
}

func TestConfigFromMapErrors(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
	}{
		{"unknown key", map[string]any{"fetch_size": 10}},
		{"unknown type", map[string]any{"fetch_as_string": "varchar3"}},
		{"bad format", map[string]any{"out_format": "table"}},
		{"not a number", map[string]any{"workers": "many"}},
		{"zero fetch size", map[string]any{"fetch_array_size": 0}},
		{"blob as string", map[string]any{"fetch_as_string": "blob"}},
		{"queue below workers", map[string]any{"workers": 8, "queue_depth": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigFromMap(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.validate())
	assert.Equal(t, uint32(DefaultFetchArraySize), cfg.FetchArraySize)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("19.3.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 19, Minor: 3, VersionStr: "19.3.0.0.0"}, v)
	assert.True(t, v.AtLeast(19, 3, 0))
	assert.False(t, v.AtLeast(19, 4, 0))
	assert.False(t, v.SupportsJSON())

	v, err = ParseVersion("Oracle Database 23ai Free Release 23.4.0.24.05 - Develop, Learn, and Run for Free")
	require.NoError(t, err)
	assert.Equal(t, 23, v.Major)
	assert.Equal(t, 4, v.Minor)
	assert.Equal(t, 24, v.Patch)
	assert.True(t, v.SupportsBoolean())
	assert.True(t, v.SupportsJSON())

	_, err = ParseVersion("no version here")
	assert.Error(t, err)
}
