// Package value defines the Go representation of ASN.1 values handled by the
// codecs, and type-directed conversion and comparison over it.
//
// The canonical representation of each kind is:
//
//	Null             Null
//	Boolean          bool
//	Integer          int64
//	Enumerated       string (the item name)
//	Real             float64
//	BitString        asn1.BitString
//	OctetString      []byte
//	CharacterString  string
//	ObjectIdentifier asn1.ObjectIdentifier
//	Sequence         Sequence (absent members have no key)
//	Choice           Choice
//	SequenceOf       []any
//
// Encoders accept a few convenient alternatives (any Go integer type,
// map[string]any for sequences, float32, []int for object identifiers);
// decoders always produce the canonical form.
package value

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"math"
	"slices"

	"golang.org/x/exp/constraints"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/schema"
)

// Null is the value of the NULL type.
type Null struct{}

// Sequence holds the present members of a SEQUENCE value by name.
type Sequence map[string]any

// Choice is a CHOICE value: the selected alternative and its value.
type Choice struct {
	Name  string
	Value any
}

func integer[T constraints.Integer](v T) (int64, bool) {
	if v > 0 && uint64(v) > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// Int64 converts any Go integer to int64. It reports false for non-integers
// and for unsigned values above math.MaxInt64.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return integer(n)
	case int8:
		return integer(n)
	case int16:
		return integer(n)
	case int32:
		return integer(n)
	case uint:
		return integer(n)
	case uint8:
		return integer(n)
	case uint16:
		return integer(n)
	case uint32:
		return integer(n)
	case uint64:
		return integer(n)
	}
	return 0, false
}

// Float64 converts float64 and float32 values.
func Float64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	return 0, false
}

// BitString returns v as a bit string whose unused trailing bits are zero.
func BitString(v any) (asn1.BitString, bool) {
	var bs asn1.BitString
	switch b := v.(type) {
	case asn1.BitString:
		bs = b
	case *asn1.BitString:
		if b == nil {
			return asn1.BitString{}, false
		}
		bs = *b
	default:
		return asn1.BitString{}, false
	}
	n := (bs.BitLength + 7) / 8
	if bs.BitLength < 0 || len(bs.Bytes) < n {
		return asn1.BitString{}, false
	}
	out := asn1.BitString{Bytes: slices.Clone(bs.Bytes[:n]), BitLength: bs.BitLength}
	if r := bs.BitLength % 8; r != 0 {
		out.Bytes[n-1] &= byte(0xFF << (8 - r))
	}
	return out, true
}

// ObjectIdentifier accepts asn1.ObjectIdentifier and []int.
func ObjectIdentifier(v any) (asn1.ObjectIdentifier, bool) {
	switch o := v.(type) {
	case asn1.ObjectIdentifier:
		return o, true
	case []int:
		return asn1.ObjectIdentifier(o), true
	}
	return nil, false
}

// Members returns the members of a SEQUENCE value.
func Members(v any) (Sequence, bool) {
	switch s := v.(type) {
	case Sequence:
		return s, true
	case map[string]any:
		return Sequence(s), true
	}
	return nil, false
}

// Selected returns the alternative of a CHOICE value.
func Selected(v any) (Choice, bool) {
	switch c := v.(type) {
	case Choice:
		return c, true
	case *Choice:
		if c != nil {
			return *c, true
		}
	}
	return Choice{}, false
}

// Normalize converts v to the canonical representation of type t, checking
// that the Go types agree with the definition. Constraints are not checked.
func Normalize(v any, t *schema.Type) (any, error) {
	r := t.Resolve()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnresolvedReference, t.Name)
	}
	invalid := func() error {
		return fmt.Errorf("%w: %T is not a %s value", codec.ErrInvalidValue, v, r.Kind)
	}
	switch r.Kind {
	case schema.KindNull:
		switch v.(type) {
		case Null, nil:
			return Null{}, nil
		}
	case schema.KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.KindInteger:
		if n, ok := Int64(v); ok {
			return n, nil
		}
	case schema.KindEnumerated:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.KindReal:
		if f, ok := Float64(v); ok {
			return f, nil
		}
	case schema.KindBitString:
		if bs, ok := BitString(v); ok {
			return bs, nil
		}
	case schema.KindOctetString:
		if b, ok := v.([]byte); ok {
			return slices.Clone(b), nil
		}
	case schema.KindCharacterString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.KindObjectIdentifier:
		if o, ok := ObjectIdentifier(v); ok {
			return slices.Clone(o), nil
		}
	case schema.KindSequence:
		s, ok := Members(v)
		if !ok {
			return nil, invalid()
		}
		out := make(Sequence, len(s))
		for name, mv := range s {
			member, ok := lookupMember(r, name)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no member %q", codec.ErrInvalidValue, r.Label(), name)
			}
			nv, err := Normalize(mv, member.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = nv
		}
		return out, nil
	case schema.KindChoice:
		c, ok := Selected(v)
		if !ok {
			return nil, invalid()
		}
		variant, ok := lookupVariant(r, c.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no alternative %q", codec.ErrInvalidValue, r.Label(), c.Name)
		}
		nv, err := Normalize(c.Value, variant.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		return Choice{Name: c.Name, Value: nv}, nil
	case schema.KindSequenceOf:
		items, ok := v.([]any)
		if !ok {
			return nil, invalid()
		}
		out := make([]any, len(items))
		for i, item := range items {
			nv, err := Normalize(item, r.Element)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	}
	return nil, invalid()
}

// Equal reports whether a and b denote the same value of type t. Values that
// do not normalize under t are never equal.
func Equal(a, b any, t *schema.Type) bool {
	na, err := Normalize(a, t)
	if err != nil {
		return false
	}
	nb, err := Normalize(b, t)
	if err != nil {
		return false
	}
	return equal(na, nb, t.Resolve())
}

func equal(a, b any, t *schema.Type) bool {
	switch t.Kind {
	case schema.KindNull:
		return true
	case schema.KindReal:
		x, y := a.(float64), b.(float64)
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.IsNaN(x) && math.IsNaN(y)
		}
		return x == y && math.Signbit(x) == math.Signbit(y)
	case schema.KindBitString:
		x, y := a.(asn1.BitString), b.(asn1.BitString)
		return x.BitLength == y.BitLength && bytes.Equal(x.Bytes, y.Bytes)
	case schema.KindOctetString:
		return bytes.Equal(a.([]byte), b.([]byte))
	case schema.KindObjectIdentifier:
		return a.(asn1.ObjectIdentifier).Equal(b.(asn1.ObjectIdentifier))
	case schema.KindSequence:
		x, y := a.(Sequence), b.(Sequence)
		if len(x) != len(y) {
			return false
		}
		for name, xv := range x {
			yv, ok := y[name]
			if !ok {
				return false
			}
			member, _ := lookupMember(t, name)
			if !equal(xv, yv, member.Type.Resolve()) {
				return false
			}
		}
		return true
	case schema.KindChoice:
		x, y := a.(Choice), b.(Choice)
		if x.Name != y.Name {
			return false
		}
		variant, _ := lookupVariant(t, x.Name)
		return equal(x.Value, y.Value, variant.Type.Resolve())
	case schema.KindSequenceOf:
		x, y := a.([]any), b.([]any)
		if len(x) != len(y) {
			return false
		}
		element := t.Element.Resolve()
		for i := range x {
			if !equal(x[i], y[i], element) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func lookupMember(t *schema.Type, name string) (schema.Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return schema.Member{}, false
}

func lookupVariant(t *schema.Type, name string) (schema.Variant, bool) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return schema.Variant{}, false
}
