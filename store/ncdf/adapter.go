package ncdf

import (
	"fmt"
	"io"
	"os"

	"github.com/ctessum/cdf"

	"github.com/airdata/ncagg/store"
)

// ConfigError reports a container layout that classic NetCDF cannot
// represent — in practice, more than one unlimited dimension.
type ConfigError struct {
	Dimensions []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ncdf: classic containers support a single record dimension, got: %v", e.Dimensions)
}

// zeroForDatatype returns a zero-length value of the dynamic Go type
// cdf.Header.AddVariable and AddAttribute infer a NetCDF datatype from —
// their contents are ignored, only the dynamic type matters.
func zeroForDatatype(d store.Datatype) interface{} {
	switch d {
	case store.Byte:
		return []uint8{}
	case store.Char:
		return ""
	case store.Short:
		return []int16{}
	case store.Int:
		return []int32{}
	case store.Float:
		return []float32{}
	default:
		return []float64{}
	}
}

// datatypeOf infers v's store.Datatype from the dynamic type of its zero
// value, since cdf's own datatype enum is unexported and unreachable
// outside the library.
func datatypeOf(h *cdf.Header, v string) store.Datatype {
	switch h.ZeroValue(v, 0).(type) {
	case []uint8:
		return store.Byte
	case string:
		return store.Char
	case []int16:
		return store.Short
	case []int32:
		return store.Int
	case []float32:
		return store.Float
	default:
		return store.Double
	}
}

// toFloatSlice flattens a Config-level attribute value — a bare Go number,
// or a []interface{} of them (as TOML array decoding produces) — into a
// []float64, or reports false for anything else (strings, bools, already
// cdf-typed values).
func toFloatSlice(val interface{}) ([]float64, bool) {
	switch v := val.(type) {
	case float64:
		return []float64{v}, true
	case float32:
		return []float64{float64(v)}, true
	case int:
		return []float64{float64(v)}, true
	case int8:
		return []float64{float64(v)}, true
	case int16:
		return []float64{float64(v)}, true
	case int32:
		return []float64{float64(v)}, true
	case int64:
		return []float64{float64(v)}, true
	case uint:
		return []float64{float64(v)}, true
	case []float64:
		return v, true
	case []interface{}:
		out := make([]float64, 0, len(v))
		for _, x := range v {
			f, ok := toFloatSlice(x)
			if !ok || len(f) != 1 {
				return nil, false
			}
			out = append(out, f[0])
		}
		return out, true
	}
	return nil, false
}

// attributeValue converts val — a Config attribute value of whatever
// dynamic type TOML decoding or a reduce Strategy produced — to one of the
// types cdf.Header.AddAttribute requires ([]uint8, string, []int16,
// []int32, []float32, []float64), widened to a variable's own datatype
// where that's known (per spec.md §4.6 step 1's "attributes typed to the
// variable's dtype where the format requires it"). Global attributes
// (hasDatatype false) default numeric values to double width.
func attributeValue(val interface{}, dt store.Datatype, hasDatatype bool) interface{} {
	switch val.(type) {
	case []uint8, string, []int16, []int32, []float32, []float64:
		return val
	}
	if b, ok := val.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	nums, ok := toFloatSlice(val)
	if !ok {
		return fmt.Sprintf("%v", val)
	}
	if !hasDatatype {
		dt = store.Double
	}
	switch dt {
	case store.Byte:
		out := make([]uint8, len(nums))
		for i, n := range nums {
			out[i] = uint8(n)
		}
		return out
	case store.Short:
		out := make([]int16, len(nums))
		for i, n := range nums {
			out[i] = int16(n)
		}
		return out
	case store.Int:
		out := make([]int32, len(nums))
		for i, n := range nums {
			out[i] = int32(n)
		}
		return out
	case store.Float:
		out := make([]float32, len(nums))
		for i, n := range nums {
			out[i] = float32(n)
		}
		return out
	default:
		return nums
	}
}

func chunkSizesToInt32(sizes []int) []int32 {
	out := make([]int32, len(sizes))
	for i, s := range sizes {
		out[i] = int32(s)
	}
	return out
}

// recordIndices builds the full per-dimension begin/end index vectors
// f.Reader/f.Writer need to address the record range [start, start+count)
// of a record variable — the non-record dimensions always span their
// whole length, matching the original data layout's "extra axes always
// read/written in full" behavior. For a non-record variable it reports
// (nil, nil, true): start and count are ignored and the whole variable is
// addressed in one call. ok is false when start/count cover nothing.
func recordIndices(h *cdf.Header, v string, start, count int) (begin, end []int, ok bool) {
	if !h.IsRecordVariable(v) {
		return nil, nil, true
	}
	if count <= 0 {
		return nil, nil, false
	}
	lengths := h.Lengths(v)
	begin = make([]int, len(lengths))
	end = make([]int, len(lengths))
	begin[0] = start
	end[0] = start + count - 1
	for i := 1; i < len(lengths); i++ {
		end[i] = lengths[i] - 1
	}
	return begin, end, true
}

// reader is a store.Handle backed by an already-written classic-NetCDF
// container.
type reader struct {
	f  *cdf.File
	rw store.ReaderWriterAt
}

// Open opens an existing classic-NetCDF container for reading.
func Open(rw store.ReaderWriterAt) (store.Handle, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, &store.ErrIOFailure{Op: "open", Err: err}
	}
	return &reader{f: f, rw: rw}, nil
}

// OpenFile opens the named classic-NetCDF file for reading.
func OpenFile(path string) (store.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &store.ErrIOFailure{Op: "open " + path, Err: err}
	}
	h, err := Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileHandle{Handle: h, f: f}, nil
}

// fileHandle closes the backing *os.File alongside the container.
type fileHandle struct {
	store.Handle
	f *os.File
}

func (h *fileHandle) Close() error {
	h.Handle.Close()
	return h.f.Close()
}

func (r *reader) Dimensions() []store.DimensionInfo {
	names := r.f.Header.Dimensions("")
	lengths := r.f.Header.Lengths("")
	out := make([]store.DimensionInfo, len(names))
	for i, name := range names {
		out[i] = store.DimensionInfo{Name: name, Length: lengths[i], Unlimited: lengths[i] == 0}
	}
	return out
}

func (r *reader) Variables() []store.VariableInfo {
	names := r.f.Header.Variables()
	out := make([]store.VariableInfo, len(names))
	for i, name := range names {
		out[i] = r.varInfo(name)
	}
	return out
}

func (r *reader) varInfo(name string) store.VariableInfo {
	h := r.f.Header
	attrNames := h.Attributes(name)
	attrs := make(map[string]interface{}, len(attrNames))
	for _, a := range attrNames {
		attrs[a] = h.GetAttribute(name, a)
	}
	return store.VariableInfo{
		Name:        name,
		Dimensions:  h.Dimensions(name),
		Datatype:    datatypeOf(h, name),
		Attributes:  attrs,
		IsRecordVar: h.IsRecordVariable(name),
	}
}

func (r *reader) GlobalAttributes() map[string]interface{} {
	names := r.f.Header.Attributes("")
	attrs := make(map[string]interface{}, len(names))
	for _, a := range names {
		attrs[a] = r.f.Header.GetAttribute("", a)
	}
	return attrs
}

// NumRecords reports the number of complete records along the container's
// record dimension, computed from the backing file's size the same way
// cdf.UpdateNumRecs does — the header's own numrecs field is otherwise
// unreliable until a writer calls Flush.
func (r *reader) NumRecords() int {
	f, ok := r.rw.(*os.File)
	if !ok {
		return 0
	}
	fi, err := f.Stat()
	if err != nil {
		return 0
	}
	return int(r.f.Header.NumRecs(fi.Size()))
}

func (r *reader) ReadSlab(name string, start, count int, dst interface{}) error {
	begin, end, ok := recordIndices(r.f.Header, name, start, count)
	if !ok {
		return nil
	}
	rdr := r.f.Reader(name, begin, end)
	if rdr == nil {
		return &store.ErrIOFailure{Op: "read " + name, Err: fmt.Errorf("no such variable %s", name)}
	}
	if _, err := rdr.Read(dst); err != nil && err != io.EOF {
		return &store.ErrIOFailure{Op: "read " + name, Err: err}
	}
	return nil
}

func (r *reader) Close() error { return nil }

// writer is a store.Writer building up a new container. Dimensions,
// variables, and global attributes accumulate here until Define, which
// validates the single-record-dimension constraint and writes the header.
type writer struct {
	rw     store.ReaderWriterAt
	osFile *os.File // set only when created via CreateFile, for Flush/Close

	dimNames    []string
	dimLengths  []int
	pendingVars []store.VariableInfo
	globalAttrs []kv

	f *cdf.File
}

type kv struct {
	key   string
	value interface{}
}

// Create begins a new classic-NetCDF container over rw.
func Create(rw store.ReaderWriterAt) (store.Writer, error) {
	return &writer{rw: rw}, nil
}

// CreateFile creates the named classic-NetCDF file for writing.
func CreateFile(path string) (store.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &store.ErrIOFailure{Op: "create " + path, Err: err}
	}
	w, _ := Create(f)
	w.(*writer).osFile = f
	return w, nil
}

// AddDimension records a dimension. A length of 0 marks the container's
// single record (unlimited) dimension; supplying more than one such
// dimension is reported by Define as a *ConfigError, not a panic.
func (w *writer) AddDimension(name string, length int) error {
	w.dimNames = append(w.dimNames, name)
	w.dimLengths = append(w.dimLengths, length)
	return nil
}

func (w *writer) AddVariable(info store.VariableInfo) error {
	w.pendingVars = append(w.pendingVars, info)
	return nil
}

func (w *writer) AddGlobalAttribute(name string, value interface{}) error {
	w.globalAttrs = append(w.globalAttrs, kv{name, value})
	return nil
}

func (w *writer) Define() error {
	var recdims []string
	for i, l := range w.dimLengths {
		if l == 0 {
			recdims = append(recdims, w.dimNames[i])
		}
	}
	if len(recdims) > 1 {
		return &ConfigError{Dimensions: recdims}
	}

	h := cdf.NewHeader(w.dimNames, w.dimLengths)
	for _, info := range w.pendingVars {
		h.AddVariable(info.Name, info.Dimensions, zeroForDatatype(info.Datatype))
		for k, v := range info.Attributes {
			h.AddAttribute(info.Name, k, attributeValue(v, info.Datatype, true))
		}
		if len(info.ChunkSizes) > 0 {
			// Classic NetCDF has no chunked storage; record the configured
			// sizes as a variable attribute for downstream readers, per
			// the chunking/compression note in the container design.
			h.AddAttribute(info.Name, "_ChunkSizes", chunkSizesToInt32(info.ChunkSizes))
		}
	}
	for _, ga := range w.globalAttrs {
		h.AddAttribute("", ga.key, attributeValue(ga.value, store.Double, false))
	}

	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return &store.ErrIOFailure{Op: "define", Err: errs[0]}
	}

	f, err := cdf.Create(w.rw, h)
	if err != nil {
		return &store.ErrIOFailure{Op: "define", Err: err}
	}
	w.f = f
	return nil
}

func (w *writer) WriteSlab(name string, start, count int, src interface{}) error {
	begin, end, ok := recordIndices(w.f.Header, name, start, count)
	if !ok {
		return nil
	}
	wtr := w.f.Writer(name, begin, end)
	if wtr == nil {
		return &store.ErrIOFailure{Op: "write " + name, Err: fmt.Errorf("no such variable %s", name)}
	}
	if _, err := wtr.Write(src); err != nil && err != io.EOF {
		return &store.ErrIOFailure{Op: "write " + name, Err: err}
	}
	return nil
}

// Flush determines the number of complete records from the file's size
// and writes it into the header's numrecs field, for compatibility with
// other classic-NetCDF readers; this package itself never consults
// numrecs, computing NumRecords fresh on every open instead.
func (w *writer) Flush() error {
	if w.osFile == nil {
		return nil
	}
	return cdf.UpdateNumRecs(w.osFile)
}

func (w *writer) Close() error {
	if w.osFile == nil {
		return nil
	}
	return w.osFile.Close()
}
