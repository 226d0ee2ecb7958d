// Package cftime converts between time.Time and the numeric offsets used by
// CF-convention "<unit> since <epoch>" units attributes, the calendar
// convention the index_by variables in this domain are stamped with.
//
// This is deliberately the one piece of calendar handling built on the
// standard library alone: no example repo in the retrieval pack parses
// "unit since epoch" style attributes, and the conversion itself is linear
// arithmetic scaled by a fixed unit duration — not a calendar system, so a
// calendar library would add a dependency without adding capability.
package cftime

import (
	"fmt"
	"strings"
	"time"
)

// Unit is a CF time unit: a simple duration, not a calendar period, so
// "month" and "year" are deliberately not supported (their length is
// variable and no seed scenario uses them).
type Unit struct {
	name     string
	duration time.Duration
}

var units = []Unit{
	{"seconds", time.Second},
	{"second", time.Second},
	{"secs", time.Second},
	{"sec", time.Second},
	{"s", time.Second},
	{"minutes", time.Minute},
	{"minute", time.Minute},
	{"mins", time.Minute},
	{"min", time.Minute},
	{"hours", time.Hour},
	{"hour", time.Hour},
	{"hrs", time.Hour},
	{"hr", time.Hour},
	{"days", 24 * time.Hour},
	{"day", 24 * time.Hour},
}

// Epoch describes a parsed "<unit> since <epoch>" units attribute.
type Epoch struct {
	Unit  Unit
	Since time.Time
}

// Parse parses a CF units attribute, e.g. "seconds since 2000-01-01T00:00:00Z".
func Parse(units_ string) (*Epoch, error) {
	parts := strings.SplitN(strings.TrimSpace(units_), " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("cftime: %q is not a \"<unit> since <epoch>\" units string", units_)
	}
	u, err := lookupUnit(parts[0])
	if err != nil {
		return nil, err
	}
	since, err := parseInstant(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("cftime: %q: %v", units_, err)
	}
	return &Epoch{Unit: u, Since: since}, nil
}

func lookupUnit(name string) (Unit, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, u := range units {
		if u.name == name {
			return u, nil
		}
	}
	return Unit{}, fmt.Errorf("cftime: unsupported unit %q", name)
}

var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
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

// ToTime converts a numeric offset (in e.Unit) since e.Since to a time.Time.
func (e *Epoch) ToTime(offset float64) time.Time {
	return e.Since.Add(time.Duration(offset * float64(e.Unit.duration)))
}

// ToOffset converts t to a numeric offset in e.Unit since e.Since.
func (e *Epoch) ToOffset(t time.Time) float64 {
	return float64(t.Sub(e.Since)) / float64(e.Unit.duration)
}
