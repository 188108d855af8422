// Package constraint models the PER-visible value-range and size constraints
// attached to ASN.1 type definitions.
//
// A Constraint carries an optional lower bound, an optional upper bound and
// an extensibility flag. The same shape serves INTEGER value ranges and the
// SIZE constraints of strings and SEQUENCE OF; which one a Constraint
// represents is determined by where the type definition stores it.
package constraint

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"

	"golang.org/x/exp/constraints"
)

// ErrInvalid is returned by Validate for constraints whose bounds are inverted.
var ErrInvalid = errors.New("invalid constraint")

// Constraint is a (possibly half-open) bound on a value or on a length.
type Constraint struct {
	Min        int64
	Max        int64
	HasMin     bool
	HasMax     bool
	Extensible bool
}

// Range returns the constraint (min..max).
func Range(min, max int64) Constraint {
	return Constraint{Min: min, Max: max, HasMin: true, HasMax: true}
}

// Size returns the SIZE(min..max) constraint.
func Size(min, max uint64) Constraint {
	return Range(int64(min), int64(max))
}

// Fixed returns the SIZE(n) constraint.
func Fixed(n uint64) Constraint {
	return Size(n, n)
}

// AtLeast returns the semi-constrained (min..MAX) constraint.
func AtLeast(min int64) Constraint {
	return Constraint{Min: min, HasMin: true}
}

// Unconstrained returns the empty constraint.
func Unconstrained() Constraint {
	return Constraint{}
}

// Extend returns a copy of c carrying the extension marker.
func (c Constraint) Extend() Constraint {
	c.Extensible = true
	return c
}

// Bounded reports whether both bounds are known.
func (c Constraint) Bounded() bool {
	return c.HasMin && c.HasMax
}

// IsFixed reports whether c admits exactly one value.
func (c Constraint) IsFixed() bool {
	return c.Bounded() && c.Min == c.Max
}

// Span returns max - min. Only meaningful for bounded constraints.
func (c Constraint) Span() uint64 {
	return uint64(c.Max) - uint64(c.Min)
}

// Width is the number of bits needed to encode any value of a bounded
// constraint as an offset from its lower bound: the smallest w with
// 2^w >= max - min + 1. A constraint admitting a single value has width 0.
func (c Constraint) Width() int {
	return bits.Len64(c.Span())
}

// Contains reports whether v satisfies both bounds.
func (c Constraint) Contains(v int64) bool {
	if c.HasMin && v < c.Min {
		return false
	}
	if c.HasMax && v > c.Max {
		return false
	}
	return true
}

// Bounds returns pointers to the bounds, nil where a bound is absent.
func (c Constraint) Bounds() (lb, ub *int64) {
	if c.HasMin {
		lb = &c.Min
	}
	if c.HasMax {
		ub = &c.Max
	}
	return lb, ub
}

// SizeBounds returns the bounds of a size constraint as unsigned pointers.
// An absent lower bound is reported as 0, since sizes are never negative.
func (c Constraint) SizeBounds() (lb, ub *uint64) {
	zero := uint64(0)
	lb = &zero
	if c.HasMin && c.Min > 0 {
		min := uint64(c.Min)
		lb = &min
	}
	if c.HasMax {
		max := uint64(c.Max)
		ub = &max
	}
	return lb, ub
}

// Validate checks that max >= min and that size constraints are not negative
// when size is set.
func (c Constraint) Validate(size bool) error {
	if c.Bounded() && c.Max < c.Min {
		return fmt.Errorf("%w: upper bound %d below lower bound %d", ErrInvalid, c.Max, c.Min)
	}
	if size && ((c.HasMin && c.Min < 0) || (c.HasMax && c.Max < 0)) {
		return fmt.Errorf("%w: negative size bound in %s", ErrInvalid, c)
	}
	return nil
}

// String renders c in ASN.1 notation, e.g. "(0..15,...)".
func (c Constraint) String() string {
	if !c.HasMin && !c.HasMax {
		if c.Extensible {
			return "(MIN..MAX,...)"
		}
		return ""
	}
	b := []byte{'('}
	if c.HasMin {
		b = strconv.AppendInt(b, c.Min, 10)
	} else {
		b = append(b, "MIN"...)
	}
	if !c.IsFixed() {
		b = append(b, ".."...)
		if c.HasMax {
			b = strconv.AppendInt(b, c.Max, 10)
		} else {
			b = append(b, "MAX"...)
		}
	}
	if c.Extensible {
		b = append(b, ",..."...)
	}
	return string(append(b, ')'))
}

// Width returns the number of bits needed to encode an offset in [lb, ub].
// It panics if ub < lb.
func Width[T constraints.Integer](lb, ub T) int {
	if ub < lb {
		panic("constraint: upper bound below lower bound")
	}
	return bits.Len64(uint64(ub) - uint64(lb))
}

// Within reports whether v satisfies c for any integer type. Unsigned values
// above the int64 range only satisfy constraints without an upper bound.
func Within[T constraints.Integer](c Constraint, v T) bool {
	if v > 0 && uint64(v) > 1<<63-1 {
		return !c.HasMax
	}
	return c.Contains(int64(v))
}
