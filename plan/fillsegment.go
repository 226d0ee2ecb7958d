package plan

import (
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"

	"github.com/airdata/ncagg/config"
)

// FillSegment is a planned gap: a size and a starting index value for one
// or more unlimited dimensions, synthesized by the Plan Builder to pad the
// output across a real gap between (or around) input files.
type FillSegment struct {
	cfg *config.Config

	// Size and Start are keyed by unlimited-dimension name. A FillSegment
	// produced by the Plan Builder between two files covers exactly the
	// primary dimension; one produced internally by a File Segment for an
	// internal gap covers whichever indexed dimension that gap was found
	// on. Both cases are modeled the same way.
	Size    map[string]int
	Start   map[string]float64
	Cadence map[string]float64
}

// NewFillSegment builds a Fill Segment covering dim with the given size,
// start value (the last real value immediately before the gap), and
// cadence (samples per unit along dim).
func NewFillSegment(cfg *config.Config, dim string, size int, start, cadence float64) *FillSegment {
	return &FillSegment{
		cfg:     cfg,
		Size:    map[string]int{dim: size},
		Start:   map[string]float64{dim: start},
		Cadence: map[string]float64{dim: cadence},
	}
}

// LastValue returns the synthesized value at the end of fs's coverage of
// dim: start + size/cadence, the last element of its ramp.
func (fs *FillSegment) LastValue(dim string) (float64, bool) {
	size, ok := fs.Size[dim]
	if !ok {
		return 0, false
	}
	cadence := fs.Cadence[dim]
	if cadence == 0 {
		return fs.Start[dim], true
	}
	return fs.Start[dim] + float64(size)/cadence, true
}

// SizeAlong reports fs.Size[dim], or 0 if fs doesn't cover dim (a fixed
// dimension is always written in full by the caller, never sized here).
func (fs *FillSegment) SizeAlong(dim string, strict bool) int {
	return fs.Size[dim]
}

// CallbackWithFile is a no-op: a Fill Segment has no backing input file.
func (fs *FillSegment) CallbackWithFile(fn func(path string, attrs map[string]interface{})) error {
	return nil
}

// DataFor synthesizes the output array for variable across the dimensions
// fs covers: an arithmetic-progression ramp when variable indexes one of
// fs's dimensions and every one of its dimensions has a configured
// cadence, otherwise a constant array of variable's fill value.
func (fs *FillSegment) DataFor(variable string) (*sparse.DenseArray, error) {
	v, ok := fs.cfg.Variable(variable)
	if !ok {
		return nil, &ErrVariableNotFound{Path: "<fill>", Variable: variable}
	}

	shape := make([]int, len(v.Dimensions))
	for i, dn := range v.Dimensions {
		if n, covered := fs.Size[dn]; covered {
			shape[i] = n
			continue
		}
		d, _ := fs.cfg.Dimension(dn)
		if d != nil && d.Size != nil {
			shape[i] = *d.Size
		} else {
			shape[i] = 1
		}
	}

	if rampable(fs.cfg, v, fs.Size) {
		arr := &sparse.DenseArray{Shape: shape, Elements: outerSumRamp(fs.cfg, v, shape, fs.Size, fs.Start)}
		arr.Fix()
		return arr, nil
	}
	return constantFill(shape, v.FillValue()), nil
}

// rampable reports whether variable is the index_by variable for one of
// covered's dimensions and every one of variable's own dimensions carries
// a configured expected_cadence — the condition under which Fill Segment
// synthesizes a monotonic ramp instead of a constant fill.
func rampable(cfg *config.Config, v *config.Variable, covered map[string]int) bool {
	isIndexBy := false
	for dn := range covered {
		d, ok := cfg.Dimension(dn)
		if ok && d.IndexBy == v.Name {
			isIndexBy = true
			break
		}
	}
	if !isIndexBy {
		return false
	}
	for _, dn := range v.Dimensions {
		d, ok := cfg.Dimension(dn)
		if !ok || d.ExpectedCadence[dn] == 0 {
			return false
		}
	}
	return true
}

// outerSumRamp synthesizes values for an index_by variable across shape by
// stepping each covered dimension from start[dn]+1/cadence by 1/cadence,
// and outer-summing the per-dimension ramps so a multi-dimensional
// indexing variable's extra axes stay internally consistent.
func outerSumRamp(cfg *config.Config, v *config.Variable, shape []int, size map[string]int, start map[string]float64) []float64 {
	ramps := make([][]float64, len(v.Dimensions))
	for i, dn := range v.Dimensions {
		d, _ := cfg.Dimension(dn)
		cadence := d.ExpectedCadence[dn]
		n := shape[i]
		if n == 0 {
			ramps[i] = nil
			continue
		}
		step := 1 / cadence
		r := make([]float64, n)
		if n == 1 {
			// floats.Span panics for len(dst) <= 1; a single-sample ramp
			// is just its first (and only) step.
			r[0] = step
		} else {
			floats.Span(r, step, step*float64(n))
		}
		if s, ok := start[dn]; ok {
			for j := range r {
				r[j] += s
			}
		}
		ramps[i] = r
	}

	total := 1
	for _, n := range shape {
		total *= n
	}
	out := make([]float64, total)
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	idx := make([]int, len(shape))
	for p := range out {
		rem := p
		for i, s := range strides {
			idx[i] = rem / s
			rem %= s
		}
		var sum float64
		for i, r := range ramps {
			if len(r) > 0 {
				sum += r[idx[i]]
			}
		}
		out[p] = sum
	}
	return out
}

// constantFill returns a DenseArray of the given shape filled with value.
func constantFill(shape []int, value float64) *sparse.DenseArray {
	total := 1
	for _, n := range shape {
		total *= n
	}
	elems := make([]float64, total)
	for i := range elems {
		elems[i] = value
	}
	arr := &sparse.DenseArray{Shape: shape, Elements: elems}
	arr.Fix()
	return arr
}
