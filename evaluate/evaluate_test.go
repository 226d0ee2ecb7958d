package evaluate

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/plan"
	"github.com/airdata/ncagg/reduce"
	"github.com/airdata/ncagg/store"
	"github.com/airdata/ncagg/store/memstore"
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
		Attributes: []config.GlobalAttribute{
			{Name: "production_site", Strategy: "unique_list"},
			{Name: "records", Strategy: "int_sum"},
			{Name: "algorithm_version", Strategy: "constant"},
			{Name: "date_created", Strategy: "date_created"},
			{Name: "dataset_name", Strategy: "filename"},
		},
	}
}

func fileSegment(t *testing.T, cfg *config.Config, path string, times []float64, temps []float32, attrs map[string]interface{}) *plan.FileSegment {
	h := memstore.New().AddDim("time", 0)
	for k, v := range attrs {
		h.SetGlobal(k, v)
	}
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
	open := func(string) (store.Handle, error) { return h, nil }
	fs, err := plan.NewFileSegment(cfg, path, open, logrus.StandardLogger())
	require.NoError(t, err)
	return fs
}

// S6 — attribute reduction across three inputs: unique_list, int_sum, and
// constant strategies combine into the output's global attributes.
func TestRunReducesAttributesAcrossSegments(t *testing.T) {
	cfg := timeConfig()
	log := logrus.StandardLogger()

	a := fileSegment(t, cfg, "a.nc", []float64{1, 2}, []float32{1, 2}, map[string]interface{}{
		"production_site": "A", "records": int32(100), "algorithm_version": "1.0",
	})
	b := fileSegment(t, cfg, "b.nc", []float64{3, 4}, []float32{3, 4}, map[string]interface{}{
		"production_site": "B", "records": int32(200), "algorithm_version": "1.0",
	})
	c := fileSegment(t, cfg, "c.nc", []float64{5, 6}, []float32{5, 6}, map[string]interface{}{
		"production_site": "A", "records": int32(150), "algorithm_version": "1.0",
	})
	p := plan.Plan{a, b, c}

	h, err := reduce.NewHandler(cfg, log)
	require.NoError(t, err)

	w := memstore.NewWriter()
	err = Run(cfg, p, "out.nc", func(string) (store.Writer, error) { return w, nil }, h, log, Options{})
	require.NoError(t, err)

	assert.Equal(t, "A, B", w.Globals["production_site"])
	assert.Equal(t, int64(450), w.Globals["records"])
	assert.Equal(t, "1.0", w.Globals["algorithm_version"])
	assert.Contains(t, w.Globals, "date_created")
	assert.Equal(t, "out.nc", w.Globals["dataset_name"])

	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, w.Written["time"])
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, w.Written["temp"])
	assert.True(t, w.Defined)
	assert.True(t, w.Closed)
}

func TestRunAdvancesWriteOffsetPerSegment(t *testing.T) {
	cfg := timeConfig()
	log := logrus.StandardLogger()

	a := fileSegment(t, cfg, "a.nc", []float64{1, 2, 3}, []float32{10, 20, 30}, nil)
	b := fileSegment(t, cfg, "b.nc", []float64{4, 5}, []float32{40, 50}, nil)
	p := plan.Plan{a, b}

	h, err := reduce.NewHandler(cfg, log)
	require.NoError(t, err)

	w := memstore.NewWriter()
	err = Run(cfg, p, "out.nc", func(string) (store.Writer, error) { return w, nil }, h, log, Options{})
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20, 30, 40, 50}, w.Written["temp"])
}

func TestRunHonorsProgressCancellation(t *testing.T) {
	cfg := timeConfig()
	log := logrus.StandardLogger()

	a := fileSegment(t, cfg, "a.nc", []float64{1, 2}, []float32{10, 20}, nil)
	b := fileSegment(t, cfg, "b.nc", []float64{3, 4}, []float32{30, 40}, nil)
	p := plan.Plan{a, b}

	h, err := reduce.NewHandler(cfg, log)
	require.NoError(t, err)

	w := memstore.NewWriter()
	calls := 0
	err = Run(cfg, p, "out.nc", func(string) (store.Writer, error) { return w, nil }, h, log, Options{
		Progress: func(index, total int) bool {
			calls++
			return index == 0
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []float64{10, 20}, w.Written["temp"])
}
