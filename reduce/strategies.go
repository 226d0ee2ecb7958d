package reduce

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/airdata/ncagg/config"
	"github.com/airdata/ncagg/internal/cftime"
)

// splitAttrList splits a comma-separated attribute value the way the
// original attributes module does (attributes.py:93, re.split(", *", attr)):
// on a comma followed by zero or more spaces.
var splitAttrList = regexp.MustCompile(", *")

// firstStrategy keeps the first value it sees.
type firstStrategy struct {
	set bool
	val interface{}
}

func (s *firstStrategy) Process(value interface{}) error {
	if !s.set {
		s.val, s.set = value, true
	}
	return nil
}
func (s *firstStrategy) Finalize() (interface{}, error) { return s.val, nil }

// lastStrategy keeps the most recently seen value.
type lastStrategy struct{ val interface{} }

func (s *lastStrategy) Process(value interface{}) error {
	s.val = value
	return nil
}
func (s *lastStrategy) Finalize() (interface{}, error) { return s.val, nil }

// uniqueListStrategy accumulates the distinct string representations of
// every value it sees, in first-seen order, comma-joined.
type uniqueListStrategy struct {
	seen   map[string]bool
	values []string
}

func (s *uniqueListStrategy) Process(value interface{}) error {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, str := range splitAttrList.Split(fmt.Sprintf("%v", value), -1) {
		if str == "" {
			continue
		}
		if !s.seen[str] {
			s.seen[str] = true
			s.values = append(s.values, str)
		}
	}
	return nil
}
func (s *uniqueListStrategy) Finalize() (interface{}, error) {
	out := ""
	for i, v := range s.values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out, nil
}

// intSumStrategy accumulates an integer total.
type intSumStrategy struct{ total int64 }

func (s *intSumStrategy) Process(value interface{}) error {
	v, err := toInt64(value)
	if err != nil {
		return err
	}
	s.total += v
	return nil
}
func (s *intSumStrategy) Finalize() (interface{}, error) { return s.total, nil }

// floatSumStrategy accumulates a floating-point total.
type floatSumStrategy struct{ total float64 }

func (s *floatSumStrategy) Process(value interface{}) error {
	v, err := toFloat64(value)
	if err != nil {
		return err
	}
	s.total += v
	return nil
}
func (s *floatSumStrategy) Finalize() (interface{}, error) { return s.total, nil }

// constantStrategy asserts every observed value is identical, keeping the
// first and flagging a mismatch at Finalize time rather than failing eagerly
// mid-run (a single differing file shouldn't abort the whole aggregation).
type constantStrategy struct {
	set      bool
	val      interface{}
	mismatch bool
}

func (s *constantStrategy) Process(value interface{}) error {
	if !s.set {
		s.val, s.set = value, true
		return nil
	}
	if fmt.Sprintf("%v", value) != fmt.Sprintf("%v", s.val) {
		s.mismatch = true
	}
	return nil
}
func (s *constantStrategy) Finalize() (interface{}, error) {
	if s.mismatch {
		return s.val, fmt.Errorf("constant attribute took more than one value, keeping first (%v)", s.val)
	}
	return s.val, nil
}

// staticStrategy always emits its configured value regardless of input.
type staticStrategy struct{ value interface{} }

func (s *staticStrategy) Process(interface{}) error          { return nil }
func (s *staticStrategy) Finalize() (interface{}, error)      { return s.value, nil }

// dateCreatedStrategy ignores input entirely and emits the moment the
// aggregation is finalized, in ISO-8601 millisecond precision.
type dateCreatedStrategy struct{ now func() time.Time }

func (s *dateCreatedStrategy) Process(interface{}) error { return nil }
func (s *dateCreatedStrategy) Finalize() (interface{}, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return datetimeFormat(now()), nil
}

// timeCoverageStrategy ignores every observed input value. Per spec.md
// §4.4, time_coverage_start/end are derived from the first unlimited
// dimension that has a min (start) or max (end) configured, converted from
// that dimension's index_by variable's units into a calendar instant.
type timeCoverageStrategy struct {
	isStart bool
	cfg     *config.Config
}

func (s *timeCoverageStrategy) Process(interface{}) error { return nil }

func (s *timeCoverageStrategy) Finalize() (interface{}, error) {
	if s.cfg == nil {
		return nil, nil
	}
	for _, d := range s.cfg.Dimensions {
		if !d.Unlimited() {
			continue
		}
		bound := d.Max
		if s.isStart {
			bound = d.Min
		}
		if bound == nil {
			continue
		}
		v, ok := s.cfg.Variable(d.IndexBy)
		if !ok {
			return nil, fmt.Errorf("dim %s has no index_by variable to convert its bound through", d.Name)
		}
		units, _ := v.Attributes["units"].(string)
		epoch, err := cftime.Parse(units)
		if err != nil {
			return nil, fmt.Errorf("dim %s: %v", d.Name, err)
		}
		return datetimeFormat(epoch.ToTime(*bound)), nil
	}
	return nil, nil
}

// filenameStrategy ignores every input and emits the output file's own
// basename, per spec.md §4.3's "filename" row. Handler sets outputPath via
// SetOutputPath just before Finalize.
type filenameStrategy struct{ outputPath string }

func (s *filenameStrategy) Process(interface{}) error { return nil }

func (s *filenameStrategy) SetOutputPath(path string) { s.outputPath = path }

func (s *filenameStrategy) Finalize() (interface{}, error) {
	return filepath.Base(s.outputPath), nil
}

// removeStrategy drops the attribute from the output entirely; Handler
// special-cases it at Finalize time so it is never written.
type removeStrategy struct{}

func (s *removeStrategy) Process(interface{}) error          { return nil }
func (s *removeStrategy) Finalize() (interface{}, error)      { return nil, nil }

// datetimeFormat renders t the way the original attributes module does:
// ISO-8601 with millisecond precision and a trailing "Z".
func datetimeFormat(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("cannot interpret %v (%T) as an integer", value, value)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot interpret %v (%T) as a number", value, value)
	}
}
