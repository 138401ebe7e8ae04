// Package algebra implements the four-element extended value domain used by
// the fusion engine. Every sensor reading is lifted into this domain so that
// "sensor offline" (AbsZero), "sensor present but unusable" (MeasZero) and
// "comparison resolved" (ResToken) stay distinguishable from ordinary numbers
// all the way through aggregation. All operations are total.
package algebra

import (
	"math"
	"strconv"
)

// Kind identifies one of the four element cases. The numeric order doubles as
// the information level: AbsZero < MeasZero < Real < ResToken.
type Kind uint8

const (
	KindAbsZero Kind = iota
	KindMeasZero
	KindReal
	KindResToken
)

// Tolerance for Real equality.
const realTolerance = 1e-12

// Value is one element of the domain. The zero value is AbsZero.
type Value struct {
	kind Kind
	v    float64
}

func AbsZero() Value  { return Value{kind: KindAbsZero} }
func MeasZero() Value { return Value{kind: KindMeasZero} }
func ResToken() Value { return Value{kind: KindResToken} }
func Real(v float64) Value {
	return Value{kind: KindReal, v: v}
}

func (x Value) Kind() Kind { return x.kind }

// Eligible reports whether x counts toward aggregate denominators.
func (x Value) Eligible() bool { return x.kind != KindAbsZero }

// Definite reports whether x carries a usable number.
func (x Value) Definite() bool { return x.kind == KindReal }

// Float returns the wrapped number for Real values.
func (x Value) Float() (float64, bool) {
	if x.kind != KindReal {
		return 0, false
	}
	return x.v, true
}

// Level is the information level under the chain AbsZero ⊑ MeasZero ⊑ Real ⊑ ResToken.
func (x Value) Level() int { return int(x.kind) }

// Equal compares elements; the singletons compare only to themselves, Reals
// within an absolute tolerance of 1e-12.
func (x Value) Equal(y Value) bool {
	if x.kind != y.kind {
		return false
	}
	if x.kind != KindReal {
		return true
	}
	return math.Abs(x.v-y.v) <= realTolerance
}

func (x Value) String() string {
	switch x.kind {
	case KindAbsZero:
		return "0_bm"
	case KindMeasZero:
		return "0_m"
	case KindResToken:
		return "1_t"
	default:
		return "Real(" + strconv.FormatFloat(x.v, 'g', -1, 64) + ")"
	}
}

// Add is the extended addition. ResToken absorbs, AbsZero is the identity,
// MeasZero never overrides a Real (precision dominance).
func Add(x, y Value) Value {
	if x.kind == KindResToken || y.kind == KindResToken {
		return ResToken()
	}
	if x.kind == KindAbsZero {
		return y
	}
	if y.kind == KindAbsZero {
		return x
	}
	if x.kind == KindMeasZero && y.kind == KindMeasZero {
		return MeasZero()
	}
	if x.kind == KindMeasZero {
		return y
	}
	if y.kind == KindMeasZero {
		return x
	}
	return Real(x.v + y.v)
}

// Mul is the extended multiplication. AbsZero annihilates; a measured exact
// zero collapses MeasZero to AbsZero; ResToken is the identity.
func Mul(x, y Value) Value {
	if x.kind == KindAbsZero || y.kind == KindAbsZero {
		return AbsZero()
	}
	if x.kind == KindReal && x.v == 0 && y.kind == KindMeasZero {
		return AbsZero()
	}
	if y.kind == KindReal && y.v == 0 && x.kind == KindMeasZero {
		return AbsZero()
	}
	if x.kind == KindResToken {
		return y
	}
	if y.kind == KindResToken {
		return x
	}
	if x.kind == KindMeasZero || y.kind == KindMeasZero {
		// At least one indeterminate, the other a nonzero Real or indeterminate.
		return MeasZero()
	}
	return Real(x.v * y.v)
}

// Div is the extended, total division x / y.
func Div(x, y Value) Value {
	if y.kind == KindAbsZero {
		return AbsZero()
	}
	if y.kind == KindResToken {
		return x
	}
	if x.kind == KindMeasZero && y.kind == KindMeasZero {
		return ResToken()
	}
	if y.kind == KindMeasZero {
		switch {
		case x.kind == KindAbsZero:
			return AbsZero()
		case x.kind == KindReal && x.v == 0:
			return AbsZero()
		default:
			// Real nonzero or ResToken over indeterminate stays indeterminate.
			return MeasZero()
		}
	}
	// Divisor is Real from here on.
	switch x.kind {
	case KindAbsZero:
		return AbsZero()
	case KindMeasZero:
		if y.v == 0 {
			return AbsZero()
		}
		return MeasZero()
	case KindResToken:
		if y.v == 0 {
			return AbsZero()
		}
		return ResToken()
	default:
		if y.v == 0 {
			if x.v == 0 {
				return AbsZero()
			}
			// Singularity, not an error.
			return MeasZero()
		}
		return Real(x.v / y.v)
	}
}

// Method forms, for chaining.
func (x Value) Add(y Value) Value { return Add(x, y) }
func (x Value) Mul(y Value) Value { return Mul(x, y) }
func (x Value) Div(y Value) Value { return Div(x, y) }

// Count returns the number of eligible (non-AbsZero) elements.
func Count(vs []Value) int {
	n := 0
	for _, x := range vs {
		if x.Eligible() {
			n++
		}
	}
	return n
}

// Sum left-folds Add over the eligible elements, AbsZero if none.
func Sum(vs []Value) Value {
	acc := AbsZero()
	seen := false
	for _, x := range vs {
		if !x.Eligible() {
			continue
		}
		if !seen {
			acc = x
			seen = true
			continue
		}
		acc = Add(acc, x)
	}
	return acc
}

// Avg divides the eligible sum by the eligible count, AbsZero if empty.
func Avg(vs []Value) Value {
	k := Count(vs)
	if k == 0 {
		return AbsZero()
	}
	return Div(Sum(vs), Real(float64(k)))
}
