package builder

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/plan"
	"github.com/airdata/ncagg/store"
	"github.com/airdata/ncagg/store/memstore"
)

func hourlyConfig(min, max *float64) *config.Config {
	return &config.Config{
		Dimensions: []config.Dimension{
			{Name: "time", IndexBy: "time", IsPrimary: true, Min: min, Max: max, ExpectedCadence: map[string]float64{"time": 1}},
		},
		Variables: []config.Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: "float64"},
			{Name: "temp", Dimensions: []string{"time"}, Datatype: "float32"},
		},
	}
}

// fakeOpener dispenses one in-memory handle per registered path, so Build
// can discover each file's coverage independently of any real NetCDF I/O.
type fakeOpener map[string]store.Handle

func (o fakeOpener) open(path string) (store.Handle, error) { return o[path], nil }

func seqHandle(start, n int) store.Handle {
	h := memstore.New().AddDim("time", 0)
	times := make([]interface{}, n)
	temps := make([]interface{}, n)
	for i := 0; i < n; i++ {
		times[i] = []float64{float64(start + i)}
		temps[i] = []float32{float32(start + i)}
	}
	h.AddVar(store.VariableInfo{Name: "time", Dimensions: []string{"time"}, Datatype: store.Double, IsRecordVar: true}, times...)
	h.AddVar(store.VariableInfo{Name: "temp", Dimensions: []string{"time"}, Datatype: store.Float, IsRecordVar: true}, temps...)
	return h
}

func ptr(f float64) *float64 { return &f }

// S1 — in-bounds concatenation: two contiguous 60-record files plan as two
// segments with no gap or overlap handling, totaling 120 output records.
func TestBuildS1InBoundsConcatenation(t *testing.T) {
	cfg := hourlyConfig(ptr(1), ptr(121))
	opener := fakeOpener{"a.nc": seqHandle(1, 60), "b.nc": seqHandle(61, 60)}

	p, err := Build(cfg, []string{"a.nc", "b.nc"}, opener.open, logrus.StandardLogger())
	require.NoError(t, err)
	require.Len(t, p, 2)

	total := 0
	for _, n := range p {
		total += n.SizeAlong("time", true)
	}
	assert.Equal(t, 120, total)
}

// S2 — overlap trim: B's first 5 records duplicate A's tail and are
// trimmed; output covers 1..15 with no duplication.
func TestBuildS2OverlapTrim(t *testing.T) {
	cfg := hourlyConfig(nil, nil)
	opener := fakeOpener{"a.nc": seqHandle(1, 10), "b.nc": seqHandle(6, 10)}

	p, err := Build(cfg, []string{"a.nc", "b.nc"}, opener.open, logrus.StandardLogger())
	require.NoError(t, err)
	require.Len(t, p, 2)

	assert.Equal(t, 10, p[0].SizeAlong("time", true))
	assert.Equal(t, 5, p[1].SizeAlong("time", true))

	total := p[0].SizeAlong("time", true) + p[1].SizeAlong("time", true)
	assert.Equal(t, 15, total)
}

// S3 — gap fill: a 5-record hole between A (1..5) and B (11..15) is
// synthesized as a Fill Segment, for 15 output records overall.
func TestBuildS3GapFill(t *testing.T) {
	cfg := hourlyConfig(nil, nil)
	opener := fakeOpener{"a.nc": seqHandle(1, 5), "b.nc": seqHandle(11, 5)}

	p, err := Build(cfg, []string{"a.nc", "b.nc"}, opener.open, logrus.StandardLogger())
	require.NoError(t, err)
	require.Len(t, p, 3)

	_, isFile0 := p[0].(*plan.FileSegment)
	_, isFill := p[1].(*plan.FillSegment)
	_, isFile2 := p[2].(*plan.FileSegment)
	assert.True(t, isFile0)
	assert.True(t, isFill)
	assert.True(t, isFile2)

	assert.Equal(t, 5, p[1].SizeAlong("time", true))

	arr, err := p[1].DataFor("time")
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7, 8, 9, 10}, arr.Elements)

	total := 0
	for _, n := range p {
		total += n.SizeAlong("time", true)
	}
	assert.Equal(t, 15, total)
}

// S5 — out-of-bounds file dropped: a file entirely before min is excluded
// from the plan, leaving only the two in-bounds files.
func TestBuildS5OutOfBoundsDropped(t *testing.T) {
	cfg := hourlyConfig(ptr(10), ptr(30))
	opener := fakeOpener{
		"early.nc": seqHandle(0, 5),
		"a.nc":     seqHandle(10, 10),
		"b.nc":     seqHandle(20, 10),
	}

	p, err := Build(cfg, []string{"early.nc", "a.nc", "b.nc"}, opener.open, logrus.StandardLogger())
	require.NoError(t, err)
	require.Len(t, p, 2)

	first, _ := p[0].(*plan.FileSegment)
	require.NotNil(t, first)
	fv, ok := first.FirstValue("time")
	require.True(t, ok)
	assert.Equal(t, 10.0, fv)
}

// No indexing dimension configured: Build returns every file as its own
// segment, in input order, with no sorting or gap analysis.
func TestBuildNoIndexingDimensionPassesThrough(t *testing.T) {
	cfg := &config.Config{
		Dimensions: []config.Dimension{{Name: "time", IndexBy: "time"}},
		Variables: []config.Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: "float64"},
		},
	}
	cfg.Dimensions[0].IndexBy = "" // no indexing dimension at all
	opener := fakeOpener{"a.nc": seqHandle(0, 3), "b.nc": seqHandle(3, 3)}

	p, err := Build(cfg, []string{"a.nc", "b.nc"}, opener.open, logrus.StandardLogger())
	require.NoError(t, err)
	assert.Len(t, p, 2)
}
