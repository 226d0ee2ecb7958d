// Package evaluate implements the Plan Evaluator (C7): it initializes the
// output container from a Config, then iterates a Plan in order, writing
// each segment's data into the correct write-slice along every unlimited
// dimension and feeding the Attribute Reducer along the way.
package evaluate

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/plan"
	"github.com/airdata/ncagg/reduce"
	"github.com/airdata/ncagg/store"
)

// CreateFunc creates the output container at path.
type CreateFunc func(path string) (store.Writer, error)

// Options configures one evaluation run.
type Options struct {
	// Progress, if set, is invoked once per segment before it is written;
	// returning false stops the run early (cooperative cancellation), per
	// spec.md §5.
	Progress func(index, total int) bool
}

// Run initializes dst from cfg, executes p in order, and finalizes global
// attributes via h. It is the Plan Evaluator's single entry point.
func Run(cfg *config.Config, p plan.Plan, dst string, create CreateFunc, h *reduce.Handler, log *logrus.Logger, opts Options) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	w, err := create(dst)
	if err != nil {
		return &store.ErrIOFailure{Op: "create " + dst, Err: err}
	}

	if err := initialize(cfg, w); err != nil {
		w.Close()
		return err
	}

	unlimDims := unlimitedDims(cfg)
	once, unlim := partitionVariables(cfg)

	onceSource := firstNode(p)
	if onceSource != nil {
		for _, v := range once {
			if err := writeOnce(w, onceSource, v, log); err != nil {
				log.WithError(err).Warnf("evaluate: variable %s", v.Name)
			}
		}
	}

	starts := make(map[string]int, len(unlimDims))
	for _, d := range unlimDims {
		starts[d] = 0
	}

	for i, seg := range p {
		if opts.Progress != nil && !opts.Progress(i, len(p)) {
			break
		}

		segStarts := make(map[string]int, len(unlimDims))
		for _, d := range unlimDims {
			segStarts[d] = starts[d]
		}

		for _, v := range unlim {
			if err := writeSegmentVar(w, cfg, seg, v, segStarts, log); err != nil {
				log.WithError(err).Warnf("evaluate: segment %d variable %s", i, v.Name)
			}
		}

		if err := seg.CallbackWithFile(h.ProcessFile); err != nil {
			log.WithError(err).Warn("evaluate: attribute callback")
		}

		for _, d := range unlimDims {
			dim, _ := cfg.Dimension(d)
			n := seg.SizeAlong(d, true)
			if dim.Flatten {
				continue // flatten dims always write at [0, n), never advance
			}
			starts[d] += n
		}
	}

	h.Finalize(w, dst)

	if err := w.Flush(); err != nil {
		w.Close()
		return &store.ErrIOFailure{Op: "flush " + dst, Err: err}
	}
	return w.Close()
}

// firstNode picks the source for "once" (no-unlimited-dim) variables: the
// first File Segment in the plan, or the first segment of any kind if the
// plan has no File Segment at all, per spec.md §4.6 step 2.
func firstNode(p plan.Plan) plan.Node {
	for _, n := range p {
		if _, ok := n.(*plan.FileSegment); ok {
			return n
		}
	}
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// initialize creates dst's dimensions, variables (with chunksizes and
// attributes, _FillValue applied at creation time), and fixes the layout.
func initialize(cfg *config.Config, w store.Writer) error {
	for _, d := range cfg.Dimensions {
		length := 0
		if d.Size != nil {
			length = *d.Size
		}
		if err := w.AddDimension(d.Name, length); err != nil {
			return &store.ErrIOFailure{Op: "add dimension " + d.Name, Err: err}
		}
	}

	for _, v := range cfg.Variables {
		dt, err := store.ParseDatatype(v.Datatype)
		if err != nil {
			return &config.ErrConfig{Reason: "variable " + v.Name + ": " + err.Error()}
		}
		attrs := make(map[string]interface{}, len(v.Attributes)+1)
		for k, val := range v.Attributes {
			attrs[k] = val
		}
		if _, ok := attrs["_FillValue"]; !ok && dt != store.Char {
			attrs["_FillValue"] = v.FillValue()
		}
		info := store.VariableInfo{
			Name:       v.Name,
			Dimensions: v.Dimensions,
			Datatype:   dt,
			Attributes: attrs,
			ChunkSizes: v.Chunksizes,
		}
		if err := w.AddVariable(info); err != nil {
			return &store.ErrIOFailure{Op: "add variable " + v.Name, Err: err}
		}
	}

	return w.Define()
}

func unlimitedDims(cfg *config.Config) []string {
	var out []string
	for _, d := range cfg.Dimensions {
		if d.Unlimited() {
			out = append(out, d.Name)
		}
	}
	return out
}

// partitionVariables splits cfg's variables into those with no unlimited
// dimension (once) and those with at least one (unlim).
func partitionVariables(cfg *config.Config) (once, unlim []config.Variable) {
	for _, v := range cfg.Variables {
		hasUnlim := false
		for _, dn := range v.Dimensions {
			if d, ok := cfg.Dimension(dn); ok && d.Unlimited() {
				hasUnlim = true
				break
			}
		}
		if hasUnlim {
			unlim = append(unlim, v)
		} else {
			once = append(once, v)
		}
	}
	return once, unlim
}

func writeOnce(w store.Writer, source plan.Node, v config.Variable, log *logrus.Logger) error {
	arr, err := source.DataFor(v.Name)
	if err != nil {
		log.WithError(err).Infof("evaluate: %s absent from source, left as fill", v.Name)
		return nil
	}
	dt, _ := store.ParseDatatype(v.Datatype)
	maskNaN(arr.Elements, dt, v.FillValue())
	return w.WriteSlab(v.Name, 0, 1, plan.FromFloats(dt, arr.Elements))
}

// writeSegmentVar composes seg's write slice for v (per spec.md §4.6: a
// plain unlimited dim writes at [start, start+size); a flatten dim writes
// at [0, size); fixed dims are always written in full) and writes it.
func writeSegmentVar(w store.Writer, cfg *config.Config, seg plan.Node, v config.Variable, starts map[string]int, log *logrus.Logger) error {
	arr, err := seg.DataFor(v.Name)
	if err != nil {
		if _, ok := err.(*plan.ErrVariableNotFound); ok {
			log.WithError(err).Debug("evaluate: left as fill")
			return nil
		}
		return err
	}

	dt, err := store.ParseDatatype(v.Datatype)
	if err != nil {
		return err
	}
	maskNaN(arr.Elements, dt, v.FillValue())

	start, size := 0, 0
	for _, dn := range v.Dimensions {
		d, ok := cfg.Dimension(dn)
		if !ok || !d.Unlimited() {
			continue
		}
		size = seg.SizeAlong(dn, true)
		if d.Flatten {
			start = 0
		} else {
			start = starts[dn]
		}
		break
	}

	return w.WriteSlab(v.Name, start, size, plan.FromFloats(dt, arr.Elements))
}

// maskNaN replaces NaN elements with fill for floating-point dtypes, per
// spec.md §4.6 step 3c.
func maskNaN(elems []float64, dt store.Datatype, fill float64) {
	if !store.IsFloating(dt) {
		return
	}
	for i, v := range elems {
		if math.IsNaN(v) {
			elems[i] = fill
		}
	}
}
