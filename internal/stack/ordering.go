package stack

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Coercion selects how metadata values are compared against an absolute
// ordering.
type Coercion int

const (
	// CoerceNone compares numbers numerically and strings exactly.
	CoerceNone Coercion = iota
	// CoerceText formats both sides as text before comparing.
	CoerceText
)

// String returns the coercion name.
func (c Coercion) String() string {
	switch c {
	case CoerceNone:
		return "none"
	case CoerceText:
		return "text"
	default:
		return "unknown"
	}
}

// Ordinate is a sortable scalar that places a slice along one grid axis.
// Numbers sort before text.
type Ordinate struct {
	num    float64
	text   string
	isText bool
}

// NumberOrdinate returns a numeric ordinate.
func NumberOrdinate(v float64) Ordinate {
	return Ordinate{num: v}
}

// TextOrdinate returns a textual ordinate.
func TextOrdinate(s string) Ordinate {
	return Ordinate{text: s, isText: true}
}

// IsText reports whether the ordinate is textual.
func (o Ordinate) IsText() bool { return o.isText }

// Float returns the numeric value, zero for text ordinates.
func (o Ordinate) Float() float64 { return o.num }

// Text returns the textual value, empty for numeric ordinates.
func (o Ordinate) Text() string { return o.text }

// Compare returns -1, 0 or +1.
func (o Ordinate) Compare(p Ordinate) int {
	if o.isText != p.isText {
		if o.isText {
			return 1
		}
		return -1
	}
	if o.isText {
		return strings.Compare(o.text, p.text)
	}
	return cmp.Compare(o.num, p.num)
}

func (o Ordinate) String() string {
	if o.isText {
		return strconv.Quote(o.text)
	}
	return strconv.FormatFloat(o.num, 'g', -1, 64)
}

// Ordering resolves the ordinate of a slice from one metadata key. Without
// Abs the raw value is the ordinate; with Abs the ordinate is the index of
// the value within Abs.
type Ordering struct {
	Key    string
	Abs    []any
	Coerce Coercion
}

// OrdinateOf resolves the ordinate for md. ok is false when the key is not
// present at all. A present value that is missing from Abs is an
// ErrOrdinateNotFound error.
func (o *Ordering) OrdinateOf(md Metadata) (ord Ordinate, ok bool, err error) {
	if md == nil {
		return Ordinate{}, false, nil
	}
	val, ok := md.Lookup(o.Key)
	if !ok {
		return Ordinate{}, false, nil
	}

	if o.Abs == nil {
		return rawOrdinate(val), true, nil
	}

	for i, ref := range o.Abs {
		if o.matches(val, ref) {
			return NumberOrdinate(float64(i)), true, nil
		}
	}
	return Ordinate{}, true, fmt.Errorf("%w: %s value %s is not in the absolute ordering %v",
		ErrOrdinateNotFound, o.Key, formatValue(val), o.Abs)
}

func (o *Ordering) matches(val, ref any) bool {
	if o.Coerce == CoerceText {
		return formatValue(val) == formatValue(ref)
	}
	if a, ok := toFloat(val); ok {
		b, ok := toFloat(ref)
		return ok && a == b
	}
	a, aok := val.(string)
	b, bok := ref.(string)
	return aok && bok && a == b
}

func rawOrdinate(val any) Ordinate {
	if f, ok := toFloat(val); ok {
		return NumberOrdinate(f)
	}
	return TextOrdinate(formatValue(val))
}

// toFloat converts numeric scalars, and single element numeric slices, to
// float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case []float64:
		if len(n) == 1 {
			return n[0], true
		}
	case []int:
		if len(n) == 1 {
			return float64(n[0]), true
		}
	}
	return 0, false
}

func formatValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, `\`)
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
