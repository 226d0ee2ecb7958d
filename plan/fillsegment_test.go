package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/config"
)

func timeConfig() *config.Config {
	return &config.Config{
		Dimensions: []config.Dimension{
			{Name: "time", IndexBy: "time", IsPrimary: true, ExpectedCadence: map[string]float64{"time": 1}},
		},
		Variables: []config.Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: "float64"},
			{Name: "temp", Dimensions: []string{"time"}, Datatype: "float32"},
		},
	}
}

func TestFillSegmentRampsIndexVariable(t *testing.T) {
	cfg := timeConfig()
	fs := NewFillSegment(cfg, "time", 3, 10, 1)

	arr, err := fs.DataFor("time")
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 12, 13}, arr.Elements)

	last, ok := fs.LastValue("time")
	require.True(t, ok)
	assert.Equal(t, 13.0, last)
}

func TestFillSegmentRampsSingleSample(t *testing.T) {
	cfg := timeConfig()
	fs := NewFillSegment(cfg, "time", 1, 10, 1)

	arr, err := fs.DataFor("time")
	require.NoError(t, err)
	assert.Equal(t, []float64{11}, arr.Elements)

	last, ok := fs.LastValue("time")
	require.True(t, ok)
	assert.Equal(t, 11.0, last)
}

func TestFillSegmentConstantsOtherVariables(t *testing.T) {
	cfg := timeConfig()
	v, _ := cfg.Variable("temp")
	fs := NewFillSegment(cfg, "time", 2, 0, 1)

	arr, err := fs.DataFor("temp")
	require.NoError(t, err)
	want := v.FillValue()
	for _, e := range arr.Elements {
		assert.Equal(t, want, e)
	}
}

func TestFillSegmentSizeAlong(t *testing.T) {
	fs := NewFillSegment(timeConfig(), "time", 5, 0, 1)
	assert.Equal(t, 5, fs.SizeAlong("time", true))
	assert.Equal(t, 0, fs.SizeAlong("lev", true))
}

func TestFillSegmentCallbackIsNoop(t *testing.T) {
	fs := NewFillSegment(timeConfig(), "time", 1, 0, 1)
	called := false
	err := fs.CallbackWithFile(func(string, map[string]interface{}) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}
