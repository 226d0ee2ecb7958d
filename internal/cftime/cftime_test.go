package cftime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndRoundTrip(t *testing.T) {
	e, err := Parse("seconds since 2000-01-01T00:00:00Z")
	require.NoError(t, err)

	got := e.ToTime(3600)
	want := time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC)
	assert.True(t, got.Equal(want), "got %v want %v", got, want)

	assert.InDelta(t, 3600.0, e.ToOffset(want), 1e-9)
}

func TestParseHours(t *testing.T) {
	e, err := Parse("hours since 1970-01-01")
	require.NoError(t, err)
	got := e.ToTime(24)
	want := time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.True(t, got.Equal(want))
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not a units string")
	assert.Error(t, err)
}

func TestParseUnsupportedUnit(t *testing.T) {
	_, err := Parse("fortnights since 2000-01-01")
	assert.Error(t, err)
}
