// Package builder implements the Plan Builder (C6): from a file list and a
// Config, it builds File Segments, sorts them along the primary indexing
// dimension, detects bounds overflow, overlap, and gaps, and interleaves
// Fill Segments, producing the ordered Plan the Plan Evaluator executes.
package builder

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/plan"
)

// timingUncertainty is u in spec.md §4.5: the fraction of the nominal
// sample spacing a real sample may drift by before a step is treated as a
// gap (above) or a duplicate (below). It is a constant of this package,
// never a mutable global, per spec.md §9.
const timingUncertainty = 0.9

// Build runs the Plan Builder algorithm of spec.md §4.5 over paths,
// returning the ordered Plan (always primary-dimension sorted when the
// primary dimension has index_by) ready for the Plan Evaluator.
//
// Files that fail File Segment construction, lie entirely out of bounds,
// or are otherwise unusable are logged and excluded rather than aborting
// the run; only a *config.ErrConfig from cfg itself is fatal.
func Build(cfg *config.Config, paths []string, open plan.OpenFunc, log *logrus.Logger) (plan.Plan, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	segments, errored := buildFileSegments(cfg, paths, open, log)
	if len(paths) > 0 && float64(errored)/float64(len(paths)) > 0.5 {
		log.Errorf("builder: %d/%d input files failed to load", errored, len(paths))
	}

	indexedDims := indexingDimensions(cfg)
	if len(indexedDims) == 0 {
		out := make(plan.Plan, len(segments))
		for i, s := range segments {
			out[i] = s
		}
		return out, nil
	}

	primary, err := primaryDimension(cfg, indexedDims)
	if err != nil {
		return nil, err
	}

	segments = sortByFirstValue(segments, primary.Name, log)
	return assemble(cfg, segments, primary, log), nil
}

func buildFileSegments(cfg *config.Config, paths []string, open plan.OpenFunc, log *logrus.Logger) ([]*plan.FileSegment, int) {
	var segments []*plan.FileSegment
	errored := 0
	for _, path := range paths {
		fs, err := plan.NewFileSegment(cfg, path, open, log)
		if err != nil {
			errored++
			log.WithError(err).Warnf("builder: excluding %s", path)
			continue
		}
		segments = append(segments, fs)
	}
	return segments, errored
}

// indexingDimensions returns the configured dimensions with index_by set
// and flatten unset, in configuration order.
func indexingDimensions(cfg *config.Config) []config.Dimension {
	var out []config.Dimension
	for _, d := range cfg.Dimensions {
		if d.IndexBy != "" && !d.Flatten {
			out = append(out, d)
		}
	}
	return out
}

// primaryDimension picks the dimension marked is_primary among indexed,
// or the first indexed dimension if none is marked.
func primaryDimension(cfg *config.Config, indexed []config.Dimension) (config.Dimension, error) {
	for _, d := range indexed {
		if d.IsPrimary {
			return d, nil
		}
	}
	if len(indexed) == 0 {
		return config.Dimension{}, &config.ErrConfig{Reason: "no indexing dimension configured"}
	}
	return indexed[0], nil
}

func sortByFirstValue(segments []*plan.FileSegment, dim string, log *logrus.Logger) []*plan.FileSegment {
	type keyed struct {
		seg *plan.FileSegment
		key float64
	}
	var kept []keyed
	for _, s := range segments {
		v, ok := s.FirstValue(dim)
		if !ok {
			log.Warnf("builder: excluding %s: no usable %s index value", s.Path(), dim)
			continue
		}
		kept = append(kept, keyed{s, v})
	}
	for i := 1; i < len(kept); i++ {
		for j := i; j > 0 && kept[j].key < kept[j-1].key; j-- {
			kept[j], kept[j-1] = kept[j-1], kept[j]
		}
	}
	out := make([]*plan.FileSegment, len(kept))
	for i, k := range kept {
		out[i] = k.seg
	}
	return out
}

// assemble runs steps 4-6 of spec.md §4.5: bounds, gap, overlap, and
// overhang handling, interleaving Fill Segments as needed.
func assemble(cfg *config.Config, segments []*plan.FileSegment, primary config.Dimension, log *logrus.Logger) plan.Plan {
	low, high := primary.Min, primary.Max
	cadence := primary.ExpectedCadence[primary.Name]
	cadenceKnown := cadence > 0

	var dtMin, dtNom, dtMax float64
	if cadenceKnown {
		dtMin = 1 / ((2 - timingUncertainty) * cadence)
		dtNom = 1 / cadence
		dtMax = 1 / (timingUncertainty * cadence)
	}

	var final plan.Plan
	var lastFile *plan.FileSegment

	for _, next := range segments {
		first, _ := next.FirstValue(primary.Name)
		last, _ := next.LastValue(primary.Name)

		if low != nil && high != nil && (last < *low || first >= *high) {
			log.Infof("builder: excluding %s: entirely outside [%v, %v)", next.Path(), *low, *high)
			continue
		}

		if !cadenceKnown {
			final = append(final, next)
			lastFile = next
			continue
		}

		var prevEnd float64
		havePrevEnd := true
		switch {
		case len(final) > 0:
			prevEnd = lastNodeValue(final[len(final)-1], primary.Name)
		case low != nil:
			prevEnd = *low - dtMin
		default:
			havePrevEnd = false
		}

		if havePrevEnd {
			gap := first - prevEnd

			if gap > 1.6*dtMax && (low == nil || first > *low+dtMax) {
				size := int(math.Round((gap - dtNom) * cadence))
				if size < 1 {
					size = 1
				}
				var start float64
				if lastFile != nil {
					start = prevEnd
				} else {
					start = first - dtNom*float64(size+1)
					if low != nil && start < *low {
						start = *low
					}
				}
				log.Infof("builder: inserting %d fill records before %s", size, next.Path())
				final = append(final, plan.NewFillSegment(cfg, primary.Name, size, start, cadence))
			} else if gap < dtMin {
				// The small tolerance absorbs the rounding left in gap when
				// prevEnd is low - dtMin, so a sample exactly at low is kept.
				trim := int(math.Ceil(math.Abs(gap-dtMin)*cadence - 1e-9))
				if trim > 0 {
					log.Infof("builder: trimming %d overlapping records from the head of %s", trim, next.Path())
					next.SetSliceStart(primary.Name, trim)
				}
			}
		}

		if high != nil && last > *high {
			numOverlap := int(math.Ceil(math.Abs(last-*high) * cadence))
			next.SetSliceStop(primary.Name, -numOverlap)
		}

		if next.SizeAlong(primary.Name, false) > 0 {
			final = append(final, next)
			lastFile = next
		}
	}

	if high != nil && cadenceKnown && len(final) > 0 {
		if lv, ok := lastNodeLastValue(final[len(final)-1], primary.Name); ok && lv < *high-dtMax {
			size := int(math.Round((*high - lv - dtNom) * cadence))
			if size < 1 {
				size = 1
			}
			final = append(final, plan.NewFillSegment(cfg, primary.Name, size, lv, cadence))
		}
	}

	return final
}

// lastNodeValue returns the value the next gap comparison should be
// measured from: a File Segment's current last index value, or a Fill
// Segment's synthesized end (start + size/cadence).
func lastNodeValue(n plan.Node, dim string) float64 {
	if v, ok := lastNodeLastValue(n, dim); ok {
		return v
	}
	return 0
}

func lastNodeLastValue(n plan.Node, dim string) (float64, bool) {
	switch s := n.(type) {
	case *plan.FileSegment:
		return s.LastValue(dim)
	case *plan.FillSegment:
		return s.LastValue(dim)
	}
	return 0, false
}
