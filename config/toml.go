package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// unlimitedSize is the on-disk sentinel for a dimension's "size" field that
// marks it as the single record (unlimited) dimension, mirroring classic
// NetCDF's own zero-length-dimension convention (see store/ncdf).
const unlimitedSize = -1

// document is the on-disk shape of a Config: plain, ordered
// arrays-of-tables so that TOML's own ordering guarantee stands in for the
// original's OrderedDict-backed lists.
type document struct {
	Dimensions []dimensionDoc       `toml:"dimensions"`
	Variables  []variableDoc        `toml:"variables"`
	Attributes []globalAttributeDoc `toml:"attributes"`
}

type dimensionDoc struct {
	Name            string             `toml:"name"`
	Size            int                `toml:"size"`
	IndexBy         string             `toml:"index_by,omitempty"`
	Flatten         bool               `toml:"flatten"`
	Min             *float64           `toml:"min,omitempty"`
	Max             *float64           `toml:"max,omitempty"`
	OtherDimInds    map[string]int     `toml:"other_dim_inds,omitempty"`
	ExpectedCadence map[string]float64 `toml:"expected_cadence,omitempty"`
	IsPrimary       bool               `toml:"is_primary"`
}

type variableDoc struct {
	Name       string                 `toml:"name"`
	Dimensions []string               `toml:"dimensions"`
	Datatype   string                 `toml:"datatype"`
	Attributes map[string]interface{} `toml:"attributes,omitempty"`
	Chunksizes []int                  `toml:"chunksizes,omitempty"`
}

type globalAttributeDoc struct {
	Name     string      `toml:"name"`
	Strategy string      `toml:"strategy"`
	Value    interface{} `toml:"value,omitempty"`
}

func toDocument(c *Config) *document {
	doc := &document{}
	for _, d := range c.Dimensions {
		dd := dimensionDoc{
			Name:            d.Name,
			IndexBy:         d.IndexBy,
			Flatten:         d.Flatten,
			Min:             d.Min,
			Max:             d.Max,
			OtherDimInds:    d.OtherDimInds,
			ExpectedCadence: d.ExpectedCadence,
			IsPrimary:       d.IsPrimary,
		}
		if d.Size == nil {
			dd.Size = unlimitedSize
		} else {
			dd.Size = *d.Size
		}
		doc.Dimensions = append(doc.Dimensions, dd)
	}
	for _, v := range c.Variables {
		doc.Variables = append(doc.Variables, variableDoc{
			Name:       v.Name,
			Dimensions: v.Dimensions,
			Datatype:   v.Datatype,
			Attributes: v.Attributes,
			Chunksizes: v.Chunksizes,
		})
	}
	for _, a := range c.Attributes {
		doc.Attributes = append(doc.Attributes, globalAttributeDoc{
			Name:     a.Name,
			Strategy: a.Strategy,
			Value:    a.Value,
		})
	}
	return doc
}

func fromDocument(doc *document) *Config {
	c := &Config{}
	for _, dd := range doc.Dimensions {
		d := Dimension{
			Name:            dd.Name,
			IndexBy:         dd.IndexBy,
			Flatten:         dd.Flatten,
			Min:             dd.Min,
			Max:             dd.Max,
			OtherDimInds:    dd.OtherDimInds,
			ExpectedCadence: dd.ExpectedCadence,
			IsPrimary:       dd.IsPrimary,
		}
		if dd.Size != unlimitedSize {
			size := dd.Size
			d.Size = &size
		}
		c.Dimensions = append(c.Dimensions, d)
	}
	for _, vd := range doc.Variables {
		c.Variables = append(c.Variables, Variable{
			Name:       vd.Name,
			Dimensions: vd.Dimensions,
			Datatype:   vd.Datatype,
			Attributes: vd.Attributes,
			Chunksizes: vd.Chunksizes,
		})
	}
	for _, ad := range doc.Attributes {
		c.Attributes = append(c.Attributes, GlobalAttribute{
			Name:     ad.Name,
			Strategy: ad.Strategy,
			Value:    ad.Value,
		})
	}
	return c
}

// LoadTemplate reads a TOML template document from path and validates it.
func LoadTemplate(path string) (*Config, error) {
	var doc document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, &ErrConfig{Reason: "loading template " + path + ": " + err.Error()}
	}
	c := fromDocument(&doc)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteTemplate serializes c as a TOML template document to path, in the
// order its dimensions, variables, and attributes were constructed.
func WriteTemplate(c *Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &ErrConfig{Reason: "writing template " + path + ": " + err.Error()}
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(toDocument(c)); err != nil {
		return &ErrConfig{Reason: "encoding template " + path + ": " + err.Error()}
	}
	return nil
}
