package config

import "github.com/airdata/ncagg/store"

// FromHandle reflects a Config off an already-open container, the same way
// a hand-written template would describe it: every dimension, every
// variable with its attributes, and every global attribute defaulting to
// the "first" reduction strategy (with date_created/time_coverage_start/
// time_coverage_end defaulting to their matching named strategies, same as
// the original config module's from_nc).
func FromHandle(h store.Handle) (*Config, error) {
	c := &Config{}

	for _, d := range h.Dimensions() {
		dim := Dimension{Name: d.Name}
		if !d.Unlimited {
			size := d.Length
			dim.Size = &size
		}
		c.Dimensions = append(c.Dimensions, dim)
	}

	for _, v := range h.Variables() {
		attrs := make(map[string]interface{}, len(v.Attributes))
		for k, val := range v.Attributes {
			attrs[k] = val
		}
		if _, ok := attrs["_FillValue"]; !ok && v.Datatype != store.Char {
			attrs["_FillValue"] = store.DefaultFillValue(v.Datatype)
		}
		c.Variables = append(c.Variables, Variable{
			Name:       v.Name,
			Dimensions: v.Dimensions,
			Datatype:   v.Datatype.String(),
			Attributes: attrs,
			Chunksizes: v.ChunkSizes,
		})
	}

	for name := range h.GlobalAttributes() {
		strategy := "first"
		switch name {
		case "date_created":
			strategy = "date_created"
		case "time_coverage_start":
			strategy = "time_coverage_start"
		case "time_coverage_end":
			strategy = "time_coverage_end"
		}
		c.Attributes = append(c.Attributes, GlobalAttribute{Name: name, Strategy: strategy})
	}

	return c, nil
}
