package ncdf

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/store"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "ncagg-ncdf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.nc")

	w, err := CreateFile(path)
	require.NoError(t, err)

	require.NoError(t, w.AddDimension("time", 0))
	require.NoError(t, w.AddDimension("samples", 3))

	require.NoError(t, w.AddVariable(store.VariableInfo{
		Name:       "time",
		Dimensions: []string{"time"},
		Datatype:   store.Double,
		Attributes: map[string]interface{}{"units": "seconds since 2000-01-01T00:00:00Z"},
	}))
	require.NoError(t, w.AddVariable(store.VariableInfo{
		Name:       "data",
		Dimensions: []string{"time", "samples"},
		Datatype:   store.Float,
		Attributes: map[string]interface{}{"long_name": "sample data"},
	}))
	require.NoError(t, w.AddGlobalAttribute("production_site", "site-a"))

	require.NoError(t, w.Define())

	require.NoError(t, w.WriteSlab("time", 0, 1, []float64{0}))
	require.NoError(t, w.WriteSlab("time", 1, 1, []float64{1}))
	require.NoError(t, w.WriteSlab("data", 0, 1, []float32{1, 2, 3}))
	require.NoError(t, w.WriteSlab("data", 1, 1, []float32{4, 5, 6}))

	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	h, err := OpenFile(path)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 2, h.NumRecords())

	dims := h.Dimensions()
	require.Len(t, dims, 2)
	assert.Equal(t, "time", dims[0].Name)
	assert.True(t, dims[0].Unlimited)
	assert.Equal(t, "samples", dims[1].Name)
	assert.Equal(t, 3, dims[1].Length)

	var vars []string
	for _, v := range h.Variables() {
		vars = append(vars, v.Name)
		if v.Name == "time" {
			assert.True(t, v.IsRecordVar)
			assert.Equal(t, store.Double, v.Datatype)
			assert.Equal(t, "seconds since 2000-01-01T00:00:00Z", v.Attributes["units"])
		}
		if v.Name == "data" {
			assert.Equal(t, store.Float, v.Datatype)
		}
	}
	assert.ElementsMatch(t, []string{"time", "data"}, vars)

	ga := h.GlobalAttributes()
	assert.Equal(t, "site-a", ga["production_site"])

	times := make([]float64, 2)
	require.NoError(t, h.ReadSlab("time", 0, 2, times))
	assert.Equal(t, []float64{0, 1}, times)

	data := make([]float32, 3)
	require.NoError(t, h.ReadSlab("data", 1, 1, data))
	assert.Equal(t, []float32{4, 5, 6}, data)
}

func TestDefineRejectsMultipleRecordDimensions(t *testing.T) {
	dir, err := ioutil.TempDir("", "ncagg-ncdf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.nc")

	w, err := CreateFile(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDimension("time", 0))
	require.NoError(t, w.AddDimension("other", 0))

	err = w.Define()
	require.Error(t, err)
	_, ok := err.(*ConfigError)
	assert.True(t, ok)
}
