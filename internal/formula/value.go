package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/codr1/tidyquote/internal/fields"
)

// Attributes are the readable attributes of one context entry.
type Attributes struct {
	Value float64
	Time  float64
	Min   float64
	Max   float64
}

// Context supplies the names a formula may read, keyed by fields.Identifier.
type Context map[string]Attributes

// Set stores attrs under the formula identifier of name.
func (c Context) Set(name string, attrs Attributes) {
	c[fields.Identifier(name)] = attrs
}

// SetScalar stores a computed quantity (basetime, cleaningcost, ...) so
// that every attribute reads as v.
func (c Context) SetScalar(name string, v float64) {
	c.Set(name, Attributes{Value: v, Time: v, Min: v, Max: v})
}

func (c Context) lookup(name, attr string) (float64, error) {
	attrs, ok := c[fields.Identifier(name)]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	switch normalizeAttribute(attr) {
	case "value":
		return attrs.Value, nil
	case "time":
		return attrs.Time, nil
	case "min":
		return attrs.Min, nil
	case "max":
		return attrs.Max, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownAttribute, attr)
}

// normalizeAttribute maps accepted attribute spellings to value, time, min
// or max. Unknown attributes are returned unchanged.
func normalizeAttribute(attr string) string {
	switch strings.ToLower(strings.TrimSpace(attr)) {
	case "", "value":
		return "value"
	case "time":
		return "time"
	case "min", "minvalue":
		return "min"
	case "max", "maxvalue":
		return "max"
	}
	return attr
}

func validAttribute(attr string) bool {
	switch normalizeAttribute(attr) {
	case "value", "time", "min", "max":
		return true
	}
	return false
}

type valueKind int

const (
	kindNumber valueKind = iota
	kindBool
	kindString
)

type value struct {
	kind valueKind
	num  float64
	b    bool
	s    string
}

func numberValue(f float64) value { return value{kind: kindNumber, num: f} }
func boolValue(b bool) value      { return value{kind: kindBool, b: b} }
func stringValue(s string) value  { return value{kind: kindString, s: s} }

func (v value) truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindString:
		return v.s != ""
	}
	return v.num != 0 && !math.IsNaN(v.num)
}

// number coerces booleans to 1/0. Strings never coerce.
func (v value) number() (float64, error) {
	switch v.kind {
	case kindNumber:
		return v.num, nil
	case kindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("string %q used in arithmetic", v.s)
}

func strictEqual(a, b value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindBool:
		return a.b == b.b
	case kindString:
		return a.s == b.s
	}
	return a.num == b.num
}
