// Package memstore is an in-memory store.Handle/store.Writer pair used by
// plan, builder, and evaluate's tests so they can exercise the Container
// Adapter port without round-tripping real NetCDF bytes, the same role
// cloud.NewFakeClient plays for the teacher's cloud package tests.
package memstore

import (
	"fmt"

	"github.com/airdata/ncagg/store"
)

// variable holds one variable's declared shape and its record-major data:
// one []interface{} entry per record for a record variable, or a single
// entry for a non-record variable.
type variable struct {
	info    store.VariableInfo
	records []interface{}
}

// Handle is an in-memory store.Handle populated directly by tests.
type Handle struct {
	Dims    []store.DimensionInfo
	Vars    []variable
	Globals map[string]interface{}
	Records int
}

// New builds an empty Handle with no dimensions, variables, or records.
func New() *Handle {
	return &Handle{Globals: make(map[string]interface{})}
}

// AddDim registers a dimension; length 0 marks the single record dimension.
func (h *Handle) AddDim(name string, length int) *Handle {
	h.Dims = append(h.Dims, store.DimensionInfo{Name: name, Length: length, Unlimited: length == 0})
	return h
}

// AddVar registers a variable and its per-record data. records holds one
// entry per record for a record variable (records[i] is the flattened
// slice for record i); it holds exactly one entry for a non-record
// variable (the whole flattened array).
func (h *Handle) AddVar(info store.VariableInfo, records ...interface{}) *Handle {
	h.Vars = append(h.Vars, variable{info: info, records: records})
	if info.IsRecordVar && len(records) > h.Records {
		h.Records = len(records)
	}
	return h
}

// SetGlobal sets a global attribute.
func (h *Handle) SetGlobal(name string, value interface{}) *Handle {
	h.Globals[name] = value
	return h
}

func (h *Handle) Dimensions() []store.DimensionInfo       { return h.Dims }
func (h *Handle) GlobalAttributes() map[string]interface{} { return h.Globals }
func (h *Handle) NumRecords() int                          { return h.Records }

func (h *Handle) Variables() []store.VariableInfo {
	out := make([]store.VariableInfo, len(h.Vars))
	for i, v := range h.Vars {
		out[i] = v.info
	}
	return out
}

func (h *Handle) variable(name string) (*variable, bool) {
	for i := range h.Vars {
		if h.Vars[i].info.Name == name {
			return &h.Vars[i], true
		}
	}
	return nil, false
}

// ReadSlab reads count records (or the whole array, for a non-record
// variable) starting at start into dst.
func (h *Handle) ReadSlab(name string, start, count int, dst interface{}) error {
	v, ok := h.variable(name)
	if !ok {
		return fmt.Errorf("memstore: variable %s not found", name)
	}
	if !v.info.IsRecordVar {
		return copyInto(dst, v.records[0])
	}
	switch d := dst.(type) {
	case []float64:
		return fillRecords(d, v.records, start, count)
	case []float32:
		return fillRecordsGeneric(d, v.records, start, count)
	case []int32:
		return fillRecordsGeneric(d, v.records, start, count)
	case []int16:
		return fillRecordsGeneric(d, v.records, start, count)
	case []uint8:
		return fillRecordsGeneric(d, v.records, start, count)
	default:
		return fmt.Errorf("memstore: unsupported dst type %T", dst)
	}
}

func (h *Handle) Close() error { return nil }

func copyInto(dst, src interface{}) error {
	switch d := dst.(type) {
	case []float64:
		copy(d, src.([]float64))
	case []float32:
		copy(d, src.([]float32))
	case []int32:
		copy(d, src.([]int32))
	case []int16:
		copy(d, src.([]int16))
	case []uint8:
		copy(d, src.([]uint8))
	default:
		return fmt.Errorf("memstore: unsupported dst type %T", dst)
	}
	return nil
}

func fillRecords(dst []float64, records []interface{}, start, count int) error {
	perRecord := len(dst) / count
	for i := 0; i < count; i++ {
		rec, ok := records[start+i].([]float64)
		if !ok {
			return fmt.Errorf("memstore: record %d not []float64", start+i)
		}
		copy(dst[i*perRecord:(i+1)*perRecord], rec)
	}
	return nil
}

func fillRecordsGeneric(dst interface{}, records []interface{}, start, count int) error {
	switch d := dst.(type) {
	case []float32:
		for i := 0; i < count; i++ {
			rec := records[start+i].([]float32)
			copy(d[i*len(rec):(i+1)*len(rec)], rec)
		}
	case []int32:
		for i := 0; i < count; i++ {
			rec := records[start+i].([]int32)
			copy(d[i*len(rec):(i+1)*len(rec)], rec)
		}
	case []int16:
		for i := 0; i < count; i++ {
			rec := records[start+i].([]int16)
			copy(d[i*len(rec):(i+1)*len(rec)], rec)
		}
	case []uint8:
		for i := 0; i < count; i++ {
			rec := records[start+i].([]uint8)
			copy(d[i*len(rec):(i+1)*len(rec)], rec)
		}
	}
	return nil
}

// Writer is an in-memory store.Writer capturing what the Plan Evaluator
// writes, for test assertions.
type Writer struct {
	Dims       []store.DimensionInfo
	VarInfo    []store.VariableInfo
	Globals    map[string]interface{}
	GlobalKeys []string
	Written    map[string][]float64 // variable -> flattened written values, in write order
	Defined    bool
	Closed     bool
}

// NewWriter builds an empty Writer.
func NewWriter() *Writer {
	return &Writer{Globals: make(map[string]interface{}), Written: make(map[string][]float64)}
}

func (w *Writer) AddDimension(name string, length int) error {
	w.Dims = append(w.Dims, store.DimensionInfo{Name: name, Length: length, Unlimited: length == 0})
	return nil
}

func (w *Writer) AddVariable(info store.VariableInfo) error {
	w.VarInfo = append(w.VarInfo, info)
	return nil
}

func (w *Writer) AddGlobalAttribute(name string, value interface{}) error {
	if _, ok := w.Globals[name]; !ok {
		w.GlobalKeys = append(w.GlobalKeys, name)
	}
	w.Globals[name] = value
	return nil
}

func (w *Writer) Define() error {
	w.Defined = true
	return nil
}

func (w *Writer) WriteSlab(name string, start, count int, src interface{}) error {
	vals, err := toFloat64Slice(src)
	if err != nil {
		return err
	}
	cur := w.Written[name]
	perRecord := 0
	if count > 0 {
		perRecord = len(vals) / count
	}
	need := (start + count) * perRecord
	if need > len(cur) {
		grown := make([]float64, need)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[start*perRecord:], vals)
	w.Written[name] = cur
	return nil
}

func (w *Writer) Flush() error { return nil }
func (w *Writer) Close() error { w.Closed = true; return nil }

func toFloat64Slice(src interface{}) ([]float64, error) {
	switch s := src.(type) {
	case []float64:
		return s, nil
	case []float32:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("memstore: unsupported src type %T", src)
	}
}
