package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airdata/ncagg/config"
)

func TestFirstLast(t *testing.T) {
	first := &firstStrategy{}
	require.NoError(t, first.Process("a"))
	require.NoError(t, first.Process("b"))
	v, err := first.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	last := &lastStrategy{}
	require.NoError(t, last.Process("a"))
	require.NoError(t, last.Process("b"))
	v, err = last.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestUniqueList(t *testing.T) {
	s := &uniqueListStrategy{}
	require.NoError(t, s.Process("site-a"))
	require.NoError(t, s.Process("site-b"))
	require.NoError(t, s.Process("site-a"))
	v, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "site-a, site-b", v)
}

func TestUniqueListSplitsCommaSeparatedInput(t *testing.T) {
	s := &uniqueListStrategy{}
	require.NoError(t, s.Process("site-a, site-b"))
	require.NoError(t, s.Process("site-b,site-c"))
	v, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "site-a, site-b, site-c", v)
}

func TestIntFloatSum(t *testing.T) {
	is := &intSumStrategy{}
	require.NoError(t, is.Process(int32(3)))
	require.NoError(t, is.Process(int32(4)))
	v, _ := is.Finalize()
	assert.EqualValues(t, 7, v)

	fs := &floatSumStrategy{}
	require.NoError(t, fs.Process(1.5))
	require.NoError(t, fs.Process(2.5))
	v, _ = fs.Finalize()
	assert.EqualValues(t, 4.0, v)
}

func TestConstantMismatch(t *testing.T) {
	s := &constantStrategy{}
	require.NoError(t, s.Process("v1"))
	require.NoError(t, s.Process("v2"))
	v, err := s.Finalize()
	assert.Error(t, err)
	assert.Equal(t, "v1", v)
}

func timeCoverageTestConfig(min, max *float64) *config.Config {
	return &config.Config{
		Dimensions: []config.Dimension{
			{Name: "time", IndexBy: "time", IsPrimary: true, Min: min, Max: max},
		},
		Variables: []config.Variable{
			{Name: "time", Dimensions: []string{"time"}, Datatype: "float64", Attributes: map[string]interface{}{
				"units": "seconds since 2000-01-01T00:00:00Z",
			}},
		},
	}
}

func TestTimeCoverageIgnoresInputFinalizesFromConfigBounds(t *testing.T) {
	min, max := 3600.0, 7200.0

	start := &timeCoverageStrategy{isStart: true, cfg: timeCoverageTestConfig(&min, &max)}
	require.NoError(t, start.Process(999.0)) // ignored
	v, err := start.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01T01:00:00.000Z", v)

	end := &timeCoverageStrategy{isStart: false, cfg: timeCoverageTestConfig(&min, &max)}
	require.NoError(t, end.Process(999.0)) // ignored
	v, err = end.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01T02:00:00.000Z", v)
}

func TestTimeCoverageNoBoundConfigured(t *testing.T) {
	s := &timeCoverageStrategy{isStart: true, cfg: timeCoverageTestConfig(nil, nil)}
	v, err := s.Finalize()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFilenameUsesOutputBasename(t *testing.T) {
	s := &filenameStrategy{}
	require.NoError(t, s.Process("/inputs/a.nc"))
	require.NoError(t, s.Process("/inputs/b.nc"))
	s.SetOutputPath("/out/combined.nc")
	v, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "combined.nc", v)
}

func TestRemoveNeverWrites(t *testing.T) {
	s := &removeStrategy{}
	require.NoError(t, s.Process("anything"))
	v, err := s.Finalize()
	require.NoError(t, err)
	assert.Nil(t, v)
}
