package plan

import (
	"math"
	"sort"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/store"
)

// timingUncertainty (u in §4.2/§4.5) bounds how far a sample may drift from
// its nominal cadence before the Plan Builder and File Segment coverage
// analysis treat the step as a gap or a duplicate.
const timingUncertainty = 0.9

// OpenFunc opens path for reading, the File Segment constructor's one
// dependency on the Container Adapter.
type OpenFunc func(path string) (store.Handle, error)

// chunk is one entry of a File Segment's internal coverage list: either a
// run of real, sorted record indices, or a synthesized internal gap fill.
type chunk struct {
	fill        bool
	native      []int     // real chunk: native record indices, in output order
	valuesCache []float64 // real chunk: the matching sorted index values
	size        int       // fill chunk: number of synthesized records
	fillFrom    float64   // fill chunk: the index value immediately preceding it
	cadence     float64   // fill chunk: cadence to ramp at
}

func (c chunk) length() int {
	if c.fill {
		return c.size
	}
	return len(c.native)
}

// dimCoverage is one indexed dimension's sort permutation, internal
// coverage list, and external slice override.
type dimCoverage struct {
	dimName  string
	varName  string
	chunks   []chunk
	total    int
	values   []float64 // logical sequence of index_by values, real + synthesized
	native   []int     // logical sequence of native record indices, -1 for fill
	sliceLo  int
	sliceHi  int // exclusive; always resolved, never negative
}

// resolveIndex maps a possibly-negative external-slice endpoint (counting
// back from the end of the internal, fill-adjusted length) to an absolute
// index in [0, total].
func resolveIndex(n, total int) int {
	if n < 0 {
		n = total + n
	}
	if n < 0 {
		n = 0
	}
	if n > total {
		n = total
	}
	return n
}

// FileSegment is a planned read from one input file: a sort permutation
// and internal coverage list per indexed dimension, plus an external slice
// override, exactly as spec.md §4.2 describes.
type FileSegment struct {
	cfg  *config.Config
	path string
	log  *logrus.Logger
	open OpenFunc

	handle store.Handle
	dims   map[string]*dimCoverage
}

// NewFileSegment opens path, discovers the sorted, gap-annotated coverage
// of every configured indexed dimension (those with index_by set and not
// flatten), and returns the resulting File Segment. It returns
// *ErrUnindexableFile if every indexing value for some dimension is
// missing or invalid.
func NewFileSegment(cfg *config.Config, path string, open OpenFunc, log *logrus.Logger) (*FileSegment, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h, err := open(path)
	if err != nil {
		return nil, &store.ErrIOFailure{Op: "open " + path, Err: err}
	}

	fs := &FileSegment{cfg: cfg, path: path, log: log, open: open, handle: h, dims: make(map[string]*dimCoverage)}

	for _, d := range cfg.Dimensions {
		if d.IndexBy == "" || d.Flatten {
			continue
		}
		dc, err := buildDimCoverage(cfg, h, d)
		if err != nil {
			h.Close()
			return nil, err
		}
		fs.dims[d.Name] = dc
	}

	if err := fs.release(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Path reports the file this segment reads from.
func (fs *FileSegment) Path() string { return fs.path }

// ensureOpen reopens the backing handle if it was released between calls,
// a scoped acquire/release pattern so a long plan never holds every input
// file open simultaneously.
func (fs *FileSegment) ensureOpen() error {
	if fs.handle != nil {
		return nil
	}
	h, err := fs.open(fs.path)
	if err != nil {
		return &store.ErrIOFailure{Op: "reopen " + fs.path, Err: err}
	}
	fs.handle = h
	return nil
}

// release closes the backing handle; it is safe to call repeatedly and
// ensureOpen transparently reopens it on the next access.
func (fs *FileSegment) release() error {
	if fs.handle == nil {
		return nil
	}
	err := fs.handle.Close()
	fs.handle = nil
	return err
}

func buildDimCoverage(cfg *config.Config, h store.Handle, d config.Dimension) (*dimCoverage, error) {
	values, native, err := readIndexValues(cfg, h, d)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return values[order[i]] < values[order[j]] })

	sortedVals := make([]float64, len(order))
	sortedNative := make([]int, len(order))
	for i, o := range order {
		sortedVals[i] = values[o]
		sortedNative[i] = native[o]
	}

	start := 0
	for start < len(sortedVals) && invalidIndex(sortedVals[start]) {
		start++
	}
	if start >= len(sortedVals) {
		return nil, &ErrUnindexableFile{Dim: d.Name}
	}

	cadence := d.ExpectedCadence[d.Name]
	chunks := buildChunks(sortedVals, sortedNative, start, cadence)

	dc := &dimCoverage{dimName: d.Name, varName: d.IndexBy}
	for _, c := range chunks {
		dc.chunks = append(dc.chunks, c)
		n := c.length()
		if c.fill {
			step := 1 / c.cadence
			for i := 0; i < n; i++ {
				dc.values = append(dc.values, c.fillFrom+step*float64(i+1))
				dc.native = append(dc.native, -1)
			}
		} else {
			dc.values = append(dc.values, c.valuesCache...)
			dc.native = append(dc.native, c.native...)
		}
	}
	dc.total = len(dc.values)
	dc.sliceLo, dc.sliceHi = 0, dc.total
	return dc, nil
}

// invalidIndex reports whether v is unusable as an indexing value: NaN or
// non-positive, matching the time-like-index convention spec.md §4.2 uses
// for skipping leading runs and treating unknown-cadence boundaries.
func invalidIndex(v float64) bool {
	return math.IsNaN(v) || v <= 0
}

func buildChunks(values []float64, native []int, start int, cadence float64) []chunk {
	var chunks []chunk
	var curNative []int
	var curValues []float64
	prev := values[start]
	curNative = append(curNative, native[start])
	curValues = append(curValues, values[start])

	closeSpan := func() {
		if len(curNative) > 0 {
			chunks = append(chunks, chunk{native: curNative, valuesCache: curValues})
			curNative, curValues = nil, nil
		}
	}

	cadenceKnown := cadence > 0
	var dtMin, dtMax float64
	if cadenceKnown {
		dtMin = 1 / ((2 - timingUncertainty) * cadence)
		dtMax = 1 / (timingUncertainty * cadence)
	}

	for i := start + 1; i < len(values); i++ {
		v := values[i]
		if invalidIndex(v) {
			closeSpan()
			continue
		}
		step := v - prev
		if !cadenceKnown {
			curNative = append(curNative, native[i])
			curValues = append(curValues, v)
			prev = v
			continue
		}
		switch {
		case step > 2*dtMax:
			closeSpan()
			size := int(math.Abs(math.Round(step*cadence))) - 1
			if size < 1 {
				size = 1
			}
			chunks = append(chunks, chunk{fill: true, size: size, fillFrom: prev, cadence: cadence})
			curNative = append(curNative, native[i])
			curValues = append(curValues, v)
			prev = v
		case step < 0.5*dtMin:
			closeSpan()
			// duplicate/jitter: drop value i, prev stays anchored to the
			// last accepted value so the next comparison is against it.
		default:
			curNative = append(curNative, native[i])
			curValues = append(curValues, v)
			prev = v
		}
	}
	closeSpan()
	return chunks
}

// readIndexValues extracts the per-record scalar indexing value for
// dimension d's index_by variable, applying other_dim_inds when that
// variable carries extra dimensions beyond d itself. d must be the
// variable's outermost (record) dimension, the classic-format constraint
// that makes every record a contiguous, independently readable slab.
func readIndexValues(cfg *config.Config, h store.Handle, d config.Dimension) (values []float64, native []int, err error) {
	v, ok := cfg.Variable(d.IndexBy)
	if !ok {
		return nil, nil, &config.ErrConfig{Reason: "index_by variable not found: " + d.IndexBy}
	}

	n := h.NumRecords()
	dt, derr := store.ParseDatatype(v.Datatype)
	if derr != nil {
		return nil, nil, derr
	}

	// Element count contributed by this variable's non-record dimensions,
	// and the other_dim_inds offset into them.
	innerShape := make([]int, 0, len(v.Dimensions)-1)
	innerDims := make([]string, 0, len(v.Dimensions)-1)
	for _, dn := range v.Dimensions[1:] {
		od, ok := cfg.Dimension(dn)
		size := 1
		if ok && od.Size != nil {
			size = *od.Size
		}
		innerShape = append(innerShape, size)
		innerDims = append(innerDims, dn)
	}
	offset := 0
	stride := 1
	for i := len(innerShape) - 1; i >= 0; i-- {
		idx := d.OtherDimInds[innerDims[i]]
		offset += idx * stride
		stride *= innerShape[i]
	}
	recordElems := stride

	values = make([]float64, n)
	native = make([]int, n)
	for i := 0; i < n; i++ {
		dst := makeDst(dt, recordElems)
		if err := h.ReadSlab(v.Name, i, 1, dst); err != nil {
			return nil, nil, err
		}
		values[i] = elemAsFloat(dst, offset)
		native[i] = i
	}
	return values, native, nil
}

func makeDst(dt store.Datatype, n int) interface{} {
	switch dt {
	case store.Byte:
		return make([]uint8, n)
	case store.Short:
		return make([]int16, n)
	case store.Int:
		return make([]int32, n)
	case store.Float:
		return make([]float32, n)
	default:
		return make([]float64, n)
	}
}

func elemAsFloat(dst interface{}, i int) float64 {
	switch s := dst.(type) {
	case []uint8:
		return float64(s[i])
	case []int16:
		return float64(s[i])
	case []int32:
		return float64(s[i])
	case []float32:
		return float64(s[i])
	case []float64:
		return s[i]
	}
	return 0
}

func floatsToDst(dt store.Datatype, vals []float64) interface{} {
	switch dt {
	case store.Byte:
		out := make([]uint8, len(vals))
		for i, v := range vals {
			out[i] = uint8(v)
		}
		return out
	case store.Short:
		out := make([]int16, len(vals))
		for i, v := range vals {
			out[i] = int16(v)
		}
		return out
	case store.Int:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(v)
		}
		return out
	case store.Float:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return out
	default:
		return vals
	}
}

// FirstValue returns the first index_by value of dim within the segment's
// current external slice, after sort.
func (fs *FileSegment) FirstValue(dim string) (float64, bool) {
	dc, ok := fs.dims[dim]
	if !ok || dc.sliceLo >= dc.sliceHi {
		return 0, false
	}
	return dc.values[dc.sliceLo], true
}

// LastValue returns the last index_by value of dim within the segment's
// current external slice, after sort.
func (fs *FileSegment) LastValue(dim string) (float64, bool) {
	dc, ok := fs.dims[dim]
	if !ok || dc.sliceLo >= dc.sliceHi {
		return 0, false
	}
	return dc.values[dc.sliceHi-1], true
}

// SetSliceStart overrides the external slice's lower bound along dim.
func (fs *FileSegment) SetSliceStart(dim string, n int) {
	dc, ok := fs.dims[dim]
	if !ok {
		return
	}
	dc.sliceLo = resolveIndex(n, dc.total)
}

// SetSliceStop overrides the external slice's upper (exclusive) bound
// along dim.
func (fs *FileSegment) SetSliceStop(dim string, n int) {
	dc, ok := fs.dims[dim]
	if !ok {
		return
	}
	dc.sliceHi = resolveIndex(n, dc.total)
}

// SizeAlong reports fs's length along dim after internal coverage and
// external slice. For a fixed dimension it reports the configured size;
// for an unlimited dimension without index coverage (a flatten dim, or one
// with no index_by) it reports the file's record count, since such dims are
// written in file order with no reindexing, per spec.md §9.
func (fs *FileSegment) SizeAlong(dim string, strict bool) int {
	dc, ok := fs.dims[dim]
	if !ok {
		d, exists := fs.cfg.Dimension(dim)
		if exists && d.Size != nil {
			return *d.Size
		}
		if !exists {
			return 0
		}
		if err := fs.ensureOpen(); err != nil {
			return 0
		}
		defer fs.release()
		return fs.handle.NumRecords()
	}
	n := dc.sliceHi - dc.sliceLo
	if strict && n < 0 {
		return 0
	}
	return n
}

// CallbackWithFile reopens the backing handle if needed and invokes fn
// with this segment's path and global attributes.
func (fs *FileSegment) CallbackWithFile(fn func(path string, attrs map[string]interface{})) error {
	if err := fs.ensureOpen(); err != nil {
		return err
	}
	defer fs.release()
	fn(fs.path, fs.handle.GlobalAttributes())
	return nil
}

// DataFor produces variable's output array for this segment: sort, then
// internal-coverage splicing (synthesized fills for internal gaps), then
// the external slice. Variables absent from this file are reported via
// ErrVariableNotFound; callers treat that slot as fill values.
func (fs *FileSegment) DataFor(variable string) (*sparse.DenseArray, error) {
	v, ok := fs.cfg.Variable(variable)
	if !ok {
		return nil, &ErrVariableNotFound{Path: fs.path, Variable: variable}
	}
	if err := fs.ensureOpen(); err != nil {
		return nil, err
	}
	defer fs.release()

	present := false
	for _, vi := range fs.handle.Variables() {
		if vi.Name == variable {
			present = true
			break
		}
	}
	if !present {
		return nil, &ErrVariableNotFound{Path: fs.path, Variable: variable}
	}

	dt, err := store.ParseDatatype(v.Datatype)
	if err != nil {
		return nil, err
	}

	// Locate the single indexed dimension among v's dims, if any; classic
	// format requires it to be v's outermost (record) dimension.
	var dc *dimCoverage
	var recordDim string
	if len(v.Dimensions) > 0 {
		if d, ok := fs.dims[v.Dimensions[0]]; ok {
			dc = d
			recordDim = v.Dimensions[0]
		}
	}

	innerElems := 1
	for _, dn := range v.Dimensions {
		if dn == recordDim {
			continue
		}
		d, ok := fs.cfg.Dimension(dn)
		if ok && d.Size != nil {
			innerElems *= *d.Size
		}
	}

	if dc == nil {
		// Not an indexed-dim variable (or a flatten dim, written in file
		// order verbatim): read the whole thing in one slab.
		n := fs.handle.NumRecords()
		isRecordVar := false
		for _, vi := range fs.handle.Variables() {
			if vi.Name == variable {
				isRecordVar = vi.IsRecordVar
			}
		}
		count := innerElems
		var shape []int
		if isRecordVar {
			count = n * innerElems
			shape = shapeFor(fs.cfg, v, n)
		} else {
			shape = shapeFor(fs.cfg, v, 0)
		}
		dst := makeDst(dt, count)
		if err := fs.handle.ReadSlab(variable, 0, n, dst); err != nil {
			return nil, err
		}
		arr := &sparse.DenseArray{Shape: shape, Elements: toFloats(dst)}
		arr.Fix()
		return arr, nil
	}

	lo, hi := dc.sliceLo, dc.sliceHi
	if lo < 0 {
		lo = 0
	}
	if hi > dc.total {
		hi = dc.total
	}
	if hi < lo {
		hi = lo
	}

	isIndexVar := v.Name == dc.varName
	out := make([]float64, 0, (hi-lo)*innerElems)
	for pos := lo; pos < hi; pos++ {
		if dc.native[pos] < 0 {
			// internal fill: ramp for the index_by variable itself,
			// constant fill value otherwise.
			if isIndexVar {
				out = append(out, dc.values[pos])
			} else {
				for i := 0; i < innerElems; i++ {
					out = append(out, v.FillValue())
				}
			}
			continue
		}
		dst := makeDst(dt, innerElems)
		if err := fs.handle.ReadSlab(variable, dc.native[pos], 1, dst); err != nil {
			return nil, err
		}
		out = append(out, toFloats(dst)...)
	}

	shape := append([]int{hi - lo}, shapeFor(fs.cfg, v, 0)[1:]...)
	arr := &sparse.DenseArray{Shape: shape, Elements: out}
	arr.Fix()
	return arr, nil
}

// shapeFor computes variable's output shape. recordLen, when nonzero, is
// substituted for the variable's outermost (record) dimension's extent.
func shapeFor(cfg *config.Config, v *config.Variable, recordLen int) []int {
	shape := make([]int, len(v.Dimensions))
	for i, dn := range v.Dimensions {
		if i == 0 && recordLen > 0 {
			shape[i] = recordLen
			continue
		}
		d, ok := cfg.Dimension(dn)
		if ok && d.Size != nil {
			shape[i] = *d.Size
		} else {
			shape[i] = 1
		}
	}
	return shape
}

func toFloats(dst interface{}) []float64 {
	switch s := dst.(type) {
	case []uint8:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out
	case []int16:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out
	case []int32:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out
	case []float32:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out
	case []float64:
		return s
	}
	return nil
}

// FromFloats converts vals to the Go slice type store.Datatype dt expects
// for ReadSlab/WriteSlab, the inverse of toFloats. Exported for use by the
// Plan Evaluator when writing a DataFor result back to the output file.
func FromFloats(dt store.Datatype, vals []float64) interface{} {
	return floatsToDst(dt, vals)
}
