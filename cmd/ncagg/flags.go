package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/internal/cftime"
)

// applyUnlimitedFlags applies each -u udim:ivar[:hz[:hz...]] flag to cfg,
// setting the named dimension's index_by variable and expected_cadence. The
// first hz applies to the dimension itself; any further hz values apply, in
// order, to variable's own remaining dimensions (its extra axes, for a
// multi-dimensional indexing variable).
func applyUnlimitedFlags(cfg *config.Config, flags []string) error {
	for _, f := range flags {
		parts := strings.Split(f, ":")
		if len(parts) < 2 {
			return &config.ErrConfig{Reason: fmt.Sprintf("-u %q: expected udim:ivar[:hz[:hz...]]", f)}
		}
		dimName, ivar := parts[0], parts[1]
		d, ok := cfg.Dimension(dimName)
		if !ok {
			return &config.ErrConfig{Reason: fmt.Sprintf("-u %q: dimension %s not configured", f, dimName)}
		}
		d.IndexBy = ivar

		var hz []float64
		for _, s := range parts[2:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return &config.ErrConfig{Reason: fmt.Sprintf("-u %q: cadence %q: %v", f, s, err)}
			}
			hz = append(hz, v)
		}
		if len(hz) == 0 {
			continue
		}
		if d.ExpectedCadence == nil {
			d.ExpectedCadence = make(map[string]float64)
		}
		d.ExpectedCadence[dimName] = hz[0]

		v, ok := cfg.Variable(ivar)
		if !ok {
			continue
		}
		i := 1
		for _, vd := range v.Dimensions {
			if vd == dimName {
				continue
			}
			if i >= len(hz) {
				break
			}
			d2, ok := cfg.Dimension(vd)
			if !ok {
				continue
			}
			if d2.ExpectedCadence == nil {
				d2.ExpectedCadence = make(map[string]float64)
			}
			d2.ExpectedCadence[vd] = hz[i]
			i++
		}
	}
	return nil
}

// applyChunksizeFlags applies each -c udim:chunksize flag, overriding the
// chunk size for udim on every variable that carries it.
func applyChunksizeFlags(cfg *config.Config, flags []string) error {
	for _, f := range flags {
		parts := strings.SplitN(f, ":", 2)
		if len(parts) != 2 {
			return &config.ErrConfig{Reason: fmt.Sprintf("-c %q: expected udim:chunksize", f)}
		}
		dimName := parts[0]
		size, err := strconv.Atoi(parts[1])
		if err != nil {
			return &config.ErrConfig{Reason: fmt.Sprintf("-c %q: chunksize: %v", f, err)}
		}
		if _, ok := cfg.Dimension(dimName); !ok {
			return &config.ErrConfig{Reason: fmt.Sprintf("-c %q: dimension %s not configured", f, dimName)}
		}
		for i := range cfg.Variables {
			v := &cfg.Variables[i]
			idx := -1
			for j, vd := range v.Dimensions {
				if vd == dimName {
					idx = j
					break
				}
			}
			if idx < 0 {
				continue
			}
			if v.Chunksizes == nil {
				v.Chunksizes = make([]int, len(v.Dimensions))
			}
			v.Chunksizes[idx] = size
		}
	}
	return nil
}

// applyBoundsFlag applies -b to cfg's primary dimension: either "min:max"
// numeric bounds, or "Tstart[:[T]stop]" calendar bounds resolved through the
// primary dimension's index_by variable's units attribute.
func applyBoundsFlag(cfg *config.Config, flag string) error {
	if flag == "" {
		return nil
	}
	primary, err := resolvePrimary(cfg)
	if err != nil {
		return err
	}

	parts := strings.SplitN(flag, ":", 2)
	low, err := resolveBound(cfg, primary, parts[0])
	if err != nil {
		return err
	}
	primary.Min = low

	if len(parts) == 2 {
		high, err := resolveBound(cfg, primary, parts[1])
		if err != nil {
			return err
		}
		primary.Max = high
	}
	return nil
}

// resolvePrimary picks the dimension -b's bounds apply to: the one marked
// is_primary, or (mirroring builder.primaryDimension's fallback) the first
// configured indexing dimension if none is marked.
func resolvePrimary(cfg *config.Config) (*config.Dimension, error) {
	d, err := cfg.PrimaryDimension()
	if err == nil {
		return d, nil
	}
	if _, ok := err.(*config.ErrConfig); !ok || !strings.Contains(err.Error(), "no primary dimension") {
		return nil, err
	}
	for i := range cfg.Dimensions {
		d := &cfg.Dimensions[i]
		if d.IndexBy != "" && !d.Flatten {
			return d, nil
		}
	}
	return nil, &config.ErrConfig{Reason: "-b: no indexing dimension configured"}
}

func resolveBound(cfg *config.Config, dim *config.Dimension, s string) (*float64, error) {
	if !strings.HasPrefix(s, "T") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &config.ErrConfig{Reason: fmt.Sprintf("-b: bound %q: %v", s, err)}
		}
		return &v, nil
	}

	v, ok := cfg.Variable(dim.IndexBy)
	if !ok {
		return nil, &config.ErrConfig{Reason: fmt.Sprintf("-b: calendar bound %q needs %s's index_by variable configured", s, dim.Name)}
	}
	units, _ := v.Attributes["units"].(string)
	epoch, err := cftime.Parse(units)
	if err != nil {
		return nil, &config.ErrConfig{Reason: fmt.Sprintf("-b: %v", err)}
	}
	t, err := parseInstant(strings.TrimPrefix(s, "T"))
	if err != nil {
		return nil, &config.ErrConfig{Reason: fmt.Sprintf("-b: calendar bound %q: %v", s, err)}
	}
	off := epoch.ToOffset(t)
	return &off, nil
}

var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"200601021504",
	"20060102",
	"2006-01-02",
}

func parseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized instant %q", s)
}
