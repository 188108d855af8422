package value

import (
	"bytes"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	smithyjson "github.com/aws/smithy-go/encoding/json"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/schema"
)

// JSON forms that are not plain JSON scalars:
//
//	Real             number, or "Infinity", "-Infinity", "NaN", "-0"
//	BitString        string of '0' and '1', e.g. "10110"
//	OctetString      hex string, e.g. "0aff"
//	ObjectIdentifier dotted string, e.g. "1.2.840.113549"
//	Choice           object with exactly one key, the alternative name
const (
	realPlusInfinity  = "Infinity"
	realMinusInfinity = "-Infinity"
	realNaN           = "NaN"
	realMinusZero     = "-0"
)

// ParseJSON decodes one JSON document into a value of type t.
func ParseJSON(data []byte, t *schema.Type) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrInvalidValue, err)
	}
	return FromJSON(raw, t)
}

// FromJSON converts the output of encoding/json (numbers as json.Number or
// float64) into the canonical value of type t.
func FromJSON(raw any, t *schema.Type) (any, error) {
	r := t.Resolve()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnresolvedReference, t.Name)
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", codec.ErrInvalidValue, r.Label(), fmt.Sprintf(format, args...))
	}
	switch r.Kind {
	case schema.KindNull:
		if raw != nil {
			return nil, invalid("expected null, got %T", raw)
		}
		return Null{}, nil
	case schema.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalid("expected boolean, got %T", raw)
		}
		return b, nil
	case schema.KindInteger:
		switch n := raw.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, invalid("%v", err)
			}
			return i, nil
		case float64:
			if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
				return nil, invalid("%v is not an int64", n)
			}
			return int64(n), nil
		}
		return nil, invalid("expected integer, got %T", raw)
	case schema.KindReal:
		switch f := raw.(type) {
		case json.Number:
			v, err := f.Float64()
			if err != nil {
				return nil, invalid("%v", err)
			}
			return v, nil
		case float64:
			return f, nil
		case string:
			switch f {
			case realPlusInfinity:
				return math.Inf(1), nil
			case realMinusInfinity:
				return math.Inf(-1), nil
			case realNaN:
				return math.NaN(), nil
			case realMinusZero:
				return math.Copysign(0, -1), nil
			}
		}
		return nil, invalid("expected number, got %v", raw)
	case schema.KindEnumerated, schema.KindCharacterString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("expected string, got %T", raw)
		}
		return s, nil
	case schema.KindBitString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("expected bit string, got %T", raw)
		}
		bs, err := parseBits(s)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return bs, nil
	case schema.KindOctetString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("expected hex string, got %T", raw)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return b, nil
	case schema.KindObjectIdentifier:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("expected object identifier, got %T", raw)
		}
		oid, err := parseOID(s)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return oid, nil
	case schema.KindSequence:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid("expected object, got %T", raw)
		}
		out := make(Sequence, len(obj))
		for name, mv := range obj {
			member, ok := lookupMember(r, name)
			if !ok {
				return nil, invalid("no member %q", name)
			}
			v, err := FromJSON(mv, member.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = v
		}
		return out, nil
	case schema.KindChoice:
		obj, ok := raw.(map[string]any)
		if !ok || len(obj) != 1 {
			return nil, invalid("expected object with one alternative")
		}
		for name, av := range obj {
			variant, ok := lookupVariant(r, name)
			if !ok {
				return nil, invalid("no alternative %q", name)
			}
			v, err := FromJSON(av, variant.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return Choice{Name: name, Value: v}, nil
		}
	case schema.KindSequenceOf:
		items, ok := raw.([]any)
		if !ok {
			return nil, invalid("expected array, got %T", raw)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := FromJSON(item, r.Element)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, invalid("unsupported kind %s", r.Kind)
}

// MarshalJSON renders v, a value of type t, as a JSON document.
func MarshalJSON(v any, t *schema.Type) ([]byte, error) {
	nv, err := Normalize(v, t)
	if err != nil {
		return nil, err
	}
	enc := smithyjson.NewEncoder()
	writeJSON(enc.Value, nv, t.Resolve())
	return enc.Bytes(), nil
}

// writeJSON writes a normalized value.
func writeJSON(jv smithyjson.Value, v any, t *schema.Type) {
	switch t.Kind {
	case schema.KindNull:
		jv.Null()
	case schema.KindBoolean:
		jv.Boolean(v.(bool))
	case schema.KindInteger:
		jv.Long(v.(int64))
	case schema.KindReal:
		switch f := v.(float64); {
		case math.IsNaN(f):
			jv.String(realNaN)
		case math.IsInf(f, 1):
			jv.String(realPlusInfinity)
		case math.IsInf(f, -1):
			jv.String(realMinusInfinity)
		case f == 0 && math.Signbit(f):
			jv.String(realMinusZero)
		default:
			jv.Double(f)
		}
	case schema.KindEnumerated, schema.KindCharacterString:
		jv.String(v.(string))
	case schema.KindBitString:
		jv.String(formatBits(v.(asn1.BitString)))
	case schema.KindOctetString:
		jv.String(hex.EncodeToString(v.([]byte)))
	case schema.KindObjectIdentifier:
		jv.String(v.(asn1.ObjectIdentifier).String())
	case schema.KindSequence:
		s := v.(Sequence)
		obj := jv.Object()
		for _, m := range t.Members {
			if mv, ok := s[m.Name]; ok {
				writeJSON(obj.Key(m.Name), mv, m.Type.Resolve())
			}
		}
		obj.Close()
	case schema.KindChoice:
		c := v.(Choice)
		variant, _ := lookupVariant(t, c.Name)
		obj := jv.Object()
		writeJSON(obj.Key(c.Name), c.Value, variant.Type.Resolve())
		obj.Close()
	case schema.KindSequenceOf:
		arr := jv.Array()
		element := t.Element.Resolve()
		for _, item := range v.([]any) {
			writeJSON(arr.Value(), item, element)
		}
		arr.Close()
	}
}

func parseBits(s string) (asn1.BitString, error) {
	bs := asn1.BitString{Bytes: make([]byte, (len(s)+7)/8), BitLength: len(s)}
	for i, c := range s {
		switch c {
		case '1':
			bs.Bytes[i/8] |= 0x80 >> (i % 8)
		case '0':
		default:
			return asn1.BitString{}, fmt.Errorf("invalid bit %q at %d", c, i)
		}
	}
	return bs, nil
}

func formatBits(bs asn1.BitString) string {
	var b strings.Builder
	b.Grow(bs.BitLength)
	for i := range bs.BitLength {
		if bs.At(i) == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("object identifier %q needs at least two arcs", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid arc %q in %q", p, s)
		}
		oid[i] = n
	}
	return oid, nil
}
