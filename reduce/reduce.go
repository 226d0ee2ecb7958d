// Package reduce implements the Attribute Reducer: per-global-attribute
// strategies that fold the same attribute observed across many input files
// down to a single output value, grounded on the original ncagg
// attributes module's strategy_handlers registry.
package reduce

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/store"
)

// ErrAttributeStrategyFailure reports that a single attribute's strategy
// could not be set up. NewHandler returns it for an unknown strategy name,
// which ends the run before any file is read; failures to process or
// finalize a single attribute's value are logged and skipped instead.
type ErrAttributeStrategyFailure struct {
	Attribute string
	Err       error
}

func (e *ErrAttributeStrategyFailure) Error() string {
	return fmt.Sprintf("reduce: attribute %s: %v", e.Attribute, e.Err)
}
func (e *ErrAttributeStrategyFailure) Unwrap() error { return e.Err }

// Strategy reduces repeated observations of one attribute's value, one
// call to Process per contributing input file, down to a single output
// value returned by Finalize.
type Strategy interface {
	Process(value interface{}) error
	Finalize() (interface{}, error)
}

// Factory builds a fresh Strategy instance for one GlobalAttribute config
// entry, e.g. to capture a "static" strategy's configured Value, or (for
// time_coverage_start/end) to read bounds off cfg's dimensions.
type Factory func(attr config.GlobalAttribute, cfg *config.Config) Strategy

// Strategies is the name -> Factory registry, the Go equivalent of the
// original AttributeHandler.strategy_handlers dict.
var Strategies = map[string]Factory{
	"first":               func(config.GlobalAttribute, *config.Config) Strategy { return &firstStrategy{} },
	"last":                func(config.GlobalAttribute, *config.Config) Strategy { return &lastStrategy{} },
	"unique_list":         func(config.GlobalAttribute, *config.Config) Strategy { return &uniqueListStrategy{} },
	"int_sum":             func(config.GlobalAttribute, *config.Config) Strategy { return &intSumStrategy{} },
	"float_sum":           func(config.GlobalAttribute, *config.Config) Strategy { return &floatSumStrategy{} },
	"constant":            func(config.GlobalAttribute, *config.Config) Strategy { return &constantStrategy{} },
	"static":              func(a config.GlobalAttribute, _ *config.Config) Strategy { return &staticStrategy{value: a.Value} },
	"date_created":        func(config.GlobalAttribute, *config.Config) Strategy { return &dateCreatedStrategy{} },
	"time_coverage_start": func(_ config.GlobalAttribute, cfg *config.Config) Strategy { return &timeCoverageStrategy{isStart: true, cfg: cfg} },
	"time_coverage_end":   func(_ config.GlobalAttribute, cfg *config.Config) Strategy { return &timeCoverageStrategy{isStart: false, cfg: cfg} },
	"filename":            func(config.GlobalAttribute, *config.Config) Strategy { return &filenameStrategy{} },
	"remove":              func(config.GlobalAttribute, *config.Config) Strategy { return &removeStrategy{} },
}

// Handler drives the configured strategies across a sequence of input
// files and finalizes them onto an output container.
type Handler struct {
	log        *logrus.Logger
	strategies map[string]Strategy
	order      []string
}

// outputPathSetter is implemented by strategies (just "filename") that
// finalize against the destination path rather than any observed input.
type outputPathSetter interface {
	SetOutputPath(path string)
}

// NewHandler builds a Handler from cfg's attribute list, instantiating one
// Strategy per entry.
func NewHandler(cfg *config.Config, log *logrus.Logger) (*Handler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{log: log, strategies: make(map[string]Strategy)}
	for _, a := range cfg.Attributes {
		factory, ok := Strategies[a.Strategy]
		if !ok {
			return nil, &ErrAttributeStrategyFailure{Attribute: a.Name, Err: fmt.Errorf("unknown strategy %q", a.Strategy)}
		}
		h.strategies[a.Name] = factory(a, cfg)
		h.order = append(h.order, a.Name)
	}
	return h, nil
}

// ProcessFile feeds one input file's global attributes through every
// configured strategy. A single attribute's failure is logged and does
// not affect the others.
func (h *Handler) ProcessFile(path string, attrs map[string]interface{}) {
	for name, s := range h.strategies {
		v, ok := attrs[name]
		if !ok {
			continue
		}
		if err := s.Process(v); err != nil {
			h.log.WithError(err).Warnf("reduce: attribute %s failed to process value from %s", name, path)
		}
	}
}

// Finalize writes every configured attribute's reduced value to w, in
// configuration order. Attributes using the "remove" strategy are skipped
// entirely, and a single attribute's failure is logged and does not block
// the others.
func (h *Handler) Finalize(w store.Writer, dst string) {
	for _, name := range h.order {
		s := h.strategies[name]
		if _, ok := s.(*removeStrategy); ok {
			continue
		}
		if setter, ok := s.(outputPathSetter); ok {
			setter.SetOutputPath(dst)
		}
		val, err := s.Finalize()
		if err != nil {
			h.log.WithError(err).Warnf("reduce: attribute %s failed to finalize", name)
			continue
		}
		if val == nil {
			continue
		}
		if err := w.AddGlobalAttribute(name, val); err != nil {
			h.log.WithError(err).Warnf("reduce: attribute %s failed to write", name)
		}
	}
}
