// Package config holds the Config Model: the ordered description of
// dimensions, variables, and global attributes an aggregation run produces,
// together with the cross-validation rules that keep that description
// internally consistent.
//
// A Config is built either from a TOML template document (LoadTemplate) or
// by reflecting one off an existing input file (FromHandle), mirroring the
// two construction paths of the original ncagg config module.
package config

import (
	"fmt"

	"github.com/airdata/ncagg/store"
)

// Dimension describes one dimension of the output container.
type Dimension struct {
	Name            string
	Size            *int // nil marks the unlimited (record) dimension
	IndexBy         string
	Flatten         bool
	Min             *float64
	Max             *float64
	OtherDimInds    map[string]int
	ExpectedCadence map[string]float64
	IsPrimary       bool
}

// Unlimited reports whether d grows with each aggregated record.
func (d Dimension) Unlimited() bool { return d.Size == nil }

// Variable describes one variable of the output container.
type Variable struct {
	Name       string
	Dimensions []string
	Datatype   string
	Attributes map[string]interface{}
	Chunksizes []int
}

// GlobalAttribute describes one output-level attribute and the strategy
// used to reduce it across input files.
type GlobalAttribute struct {
	Name     string
	Strategy string
	Value    interface{}
}

// Config is the full, cross-validated description of an aggregation run.
type Config struct {
	Dimensions []Dimension
	Variables  []Variable
	Attributes []GlobalAttribute
}

// ErrConfig reports a Config that failed cross-validation.
type ErrConfig struct {
	Reason string
}

func (e *ErrConfig) Error() string { return "config: " + e.Reason }

// FillValue resolves v's fill value: its own _FillValue attribute if
// present, otherwise the canonical default for its datatype. String
// variables carry the empty string and are reported as 0 here; callers
// writing string data never consult this value.
func (v *Variable) FillValue() float64 {
	if fv, ok := v.Attributes["_FillValue"]; ok {
		switch x := fv.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int:
			return float64(x)
		case int32:
			return float64(x)
		case int16:
			return float64(x)
		}
	}
	dt, err := store.ParseDatatype(v.Datatype)
	if err != nil {
		return 0
	}
	return store.DefaultFillValue(dt)
}

// Dimension looks up a dimension by name.
func (c *Config) Dimension(name string) (*Dimension, bool) {
	for i := range c.Dimensions {
		if c.Dimensions[i].Name == name {
			return &c.Dimensions[i], true
		}
	}
	return nil, false
}

// Variable looks up a variable by name.
func (c *Config) Variable(name string) (*Variable, bool) {
	for i := range c.Variables {
		if c.Variables[i].Name == name {
			return &c.Variables[i], true
		}
	}
	return nil, false
}

// PrimaryDimension returns the dimension marked is_primary, which the Plan
// Builder sorts input files by. Exactly one dimension must be primary.
func (c *Config) PrimaryDimension() (*Dimension, error) {
	var found *Dimension
	for i := range c.Dimensions {
		if c.Dimensions[i].IsPrimary {
			if found != nil {
				return nil, &ErrConfig{Reason: fmt.Sprintf("multiple primary dimensions: %s, %s", found.Name, c.Dimensions[i].Name)}
			}
			found = &c.Dimensions[i]
		}
	}
	if found == nil {
		return nil, &ErrConfig{Reason: "no primary dimension configured"}
	}
	return found, nil
}

// Validate performs the Config Model's inter-field cross-validation: every
// dimension a variable depends on must be configured, every configured
// dimension must be used by some variable, every index_by must name an
// existing variable, and other_dim_inds must be in range of the dimension
// they index into.
func (c *Config) Validate() error {
	dimsSet := make(map[string]bool, len(c.Dimensions))
	for _, d := range c.Dimensions {
		dimsSet[d.Name] = true
	}

	varDims := make(map[string]bool)
	for _, v := range c.Variables {
		for _, d := range v.Dimensions {
			varDims[d] = true
		}
	}

	for d := range varDims {
		if !dimsSet[d] {
			return &ErrConfig{Reason: "variable depends on unconfigured dimension: " + d}
		}
	}
	for d := range dimsSet {
		if !varDims[d] {
			return &ErrConfig{Reason: "unused dimension found in config: " + d}
		}
	}

	varsSet := make(map[string]bool, len(c.Variables))
	for _, v := range c.Variables {
		varsSet[v.Name] = true
	}
	for _, d := range c.Dimensions {
		if d.IndexBy != "" && !varsSet[d.IndexBy] {
			return &ErrConfig{Reason: "index_by variable not found: " + d.IndexBy}
		}
	}

	for _, d := range c.Dimensions {
		for od, ov := range d.OtherDimInds {
			other, ok := c.Dimension(od)
			if !ok {
				return &ErrConfig{Reason: fmt.Sprintf("dim %s's other_dim_inds references unconfigured dim %s", d.Name, od)}
			}
			if other.Size != nil && *other.Size <= ov {
				return &ErrConfig{Reason: fmt.Sprintf("dim %s's other_dim_inds %d for %s too big for size %d", d.Name, ov, od, *other.Size)}
			}
		}
	}

	for _, v := range c.Variables {
		if v.Chunksizes != nil && len(v.Chunksizes) != len(v.Dimensions) {
			return &ErrConfig{Reason: fmt.Sprintf("variable %s: len(dimensions) != len(chunksizes)", v.Name)}
		}
	}

	for _, d := range c.Dimensions {
		if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
			return &ErrConfig{Reason: fmt.Sprintf("dim %s: min (%v) > max (%v)", d.Name, *d.Min, *d.Max)}
		}
	}

	return nil
}
