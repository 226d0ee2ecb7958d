package plan

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/store"
	"github.com/airdata/ncagg/store/memstore"
)

func hourlyConfig() *config.Config {
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

func handleFor(times []float64, temps []float32) func(string) (store.Handle, error) {
	h := memstore.New().
		AddDim("time", 0).
		SetGlobal("title", "test")
	timeRecords := make([]interface{}, len(times))
	tempRecords := make([]interface{}, len(temps))
	for i, v := range times {
		timeRecords[i] = []float64{v}
	}
	for i, v := range temps {
		tempRecords[i] = []float32{v}
	}
	h.AddVar(store.VariableInfo{Name: "time", Dimensions: []string{"time"}, Datatype: store.Double, IsRecordVar: true}, timeRecords...)
	h.AddVar(store.VariableInfo{Name: "temp", Dimensions: []string{"time"}, Datatype: store.Float, IsRecordVar: true}, tempRecords...)
	return func(string) (store.Handle, error) { return h, nil }
}

func TestFileSegmentFirstLastValue(t *testing.T) {
	cfg := hourlyConfig()
	open := handleFor([]float64{1, 2, 3}, []float32{10, 20, 30})
	fs, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.NoError(t, err)

	first, ok := fs.FirstValue("time")
	require.True(t, ok)
	assert.Equal(t, 1.0, first)

	last, ok := fs.LastValue("time")
	require.True(t, ok)
	assert.Equal(t, 3.0, last)
	assert.Equal(t, 3, fs.SizeAlong("time", true))
}

func TestFileSegmentSortsOutOfOrderRecords(t *testing.T) {
	cfg := hourlyConfig()
	open := handleFor([]float64{3, 1, 2}, []float32{30, 10, 20})
	fs, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.NoError(t, err)

	arr, err := fs.DataFor("temp")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, arr.Elements)
}

func TestFileSegmentSynthesizesInternalGap(t *testing.T) {
	cfg := hourlyConfig()
	// A gap between t=1 and t=5 at cadence 1/unit should synthesize fill
	// records at 2, 3, 4.
	open := handleFor([]float64{1, 5}, []float32{10, 50})
	fs, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.NoError(t, err)

	assert.Equal(t, 5, fs.SizeAlong("time", true))

	arr, err := fs.DataFor("time")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, arr.Elements)

	tempArr, err := fs.DataFor("temp")
	require.NoError(t, err)
	v, _ := cfg.Variable("temp")
	fill := v.FillValue()
	assert.Equal(t, []float64{10, fill, fill, fill, 50}, tempArr.Elements)
}

func TestFileSegmentSliceOverrides(t *testing.T) {
	cfg := hourlyConfig()
	open := handleFor([]float64{1, 2, 3, 4, 5}, []float32{10, 20, 30, 40, 50})
	fs, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.NoError(t, err)

	fs.SetSliceStart("time", 1)
	fs.SetSliceStop("time", -1)
	assert.Equal(t, 3, fs.SizeAlong("time", true))

	first, _ := fs.FirstValue("time")
	last, _ := fs.LastValue("time")
	assert.Equal(t, 2.0, first)
	assert.Equal(t, 4.0, last)
}

func TestFileSegmentUnindexableFile(t *testing.T) {
	cfg := hourlyConfig()
	open := handleFor([]float64{0, 0, 0}, []float32{1, 2, 3})
	_, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.Error(t, err)
	_, ok := err.(*ErrUnindexableFile)
	assert.True(t, ok)
}

func TestFileSegmentMissingVariable(t *testing.T) {
	cfg := hourlyConfig()
	open := handleFor([]float64{1, 2}, []float32{10, 20})
	fs, err := NewFileSegment(cfg, "f.nc", open, logrus.StandardLogger())
	require.NoError(t, err)

	_, err = fs.DataFor("nonexistent")
	require.Error(t, err)
	_, ok := err.(*ErrVariableNotFound)
	assert.True(t, ok)
}
