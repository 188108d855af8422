package value

import (
	"encoding/asn1"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/schema"
)

func message() *schema.Type {
	return schema.ExtensibleSequence(
		schema.Field("id", schema.Integer(constraint.Range(0, 255))),
		schema.Optional("flags", schema.BitString(constraint.Size(0, 8))),
		schema.Optional("payload", schema.OctetString(constraint.Unconstrained())),
		schema.Defaulted("mode", schema.Enumerated("on", "off"), "on"),
		schema.Optional("oid", schema.ObjectIdentifier()),
		schema.Optional("ratio", schema.Real()),
		schema.Optional("body", schema.Choice(
			schema.Alternative("none", schema.Null()),
			schema.Alternative("text", schema.CharacterString(schema.IA5String, constraint.Unconstrained())),
		)),
		schema.Field("items", schema.SequenceOf(schema.Boolean(), constraint.Unconstrained())).AsExtension(),
	)
}

func TestInt64(t *testing.T) {
	tests := []struct {
		input any
		want  int64
		ok    bool
	}{
		{int(-5), -5, true},
		{int8(-128), -128, true},
		{uint16(65535), 65535, true},
		{uint64(math.MaxInt64), math.MaxInt64, true},
		{uint64(math.MaxInt64) + 1, 0, false},
		{"12", 0, false},
		{1.0, 0, false},
	}
	for _, tc := range tests {
		got, ok := Int64(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Int64(%#v) = %d, %v; want %d, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalize(t *testing.T) {
	input := map[string]any{
		"id":    uint8(7),
		"flags": asn1.BitString{Bytes: []byte{0xFF}, BitLength: 3},
		"oid":   []int{1, 2, 840},
		"body":  Choice{Name: "text", Value: "hi"},
		"items": []any{true, false},
		"ratio": float32(0.5),
	}
	want := Sequence{
		"id":    int64(7),
		"flags": asn1.BitString{Bytes: []byte{0xE0}, BitLength: 3},
		"oid":   asn1.ObjectIdentifier{1, 2, 840},
		"body":  Choice{Name: "text", Value: "hi"},
		"items": []any{true, false},
		"ratio": 0.5,
	}
	got, err := Normalize(input, message())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}

	bad := []any{
		map[string]any{"id": "7"},
		map[string]any{"unknown": 1},
		map[string]any{"body": Choice{Name: "other"}},
		map[string]any{"items": []bool{true}},
		42,
	}
	for _, v := range bad {
		if _, err := Normalize(v, message()); !errors.Is(err, codec.ErrInvalidValue) {
			t.Errorf("Normalize(%#v) error = %v, want ErrInvalidValue", v, err)
		}
	}
	if _, err := Normalize(true, schema.Ref("Missing")); !errors.Is(err, codec.ErrUnresolvedReference) {
		t.Errorf("Normalize(unbound) error = %v, want ErrUnresolvedReference", err)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		typ  *schema.Type
		want bool
	}{
		{"INT_KINDS", int(3), uint8(3), schema.Integer(constraint.Unconstrained()), true},
		{"INT_DIFFERENT", int64(3), int64(4), schema.Integer(constraint.Unconstrained()), false},
		{"NAN", math.NaN(), math.NaN(), schema.Real(), true},
		{"SIGNED_ZERO", 0.0, math.Copysign(0, -1), schema.Real(), false},
		{"BITS_PADDING", asn1.BitString{Bytes: []byte{0xA0}, BitLength: 3}, asn1.BitString{Bytes: []byte{0xBF}, BitLength: 3}, schema.BitString(constraint.Unconstrained()), true},
		{"BITS_LENGTH", asn1.BitString{Bytes: []byte{0xA0}, BitLength: 3}, asn1.BitString{Bytes: []byte{0xA0}, BitLength: 4}, schema.BitString(constraint.Unconstrained()), false},
		{"OCTETS", []byte{1, 2}, []byte{1, 2}, schema.OctetString(constraint.Unconstrained()), true},
		{"OID", asn1.ObjectIdentifier{1, 2}, []int{1, 2}, schema.ObjectIdentifier(), true},
		{"SEQUENCE", map[string]any{"id": 1}, Sequence{"id": int64(1)}, message(), true},
		{"SEQUENCE_MISSING", Sequence{"id": int64(1)}, Sequence{"id": int64(1), "mode": "on"}, message(), false},
		{"CHOICE", Choice{Name: "none", Value: Null{}}, Choice{Name: "none"}, message().Members[6].Type, true},
		{"LIST", []any{true}, []any{false}, message().Members[7].Type, false},
		{"WRONG_TYPE", "on", 1, schema.Enumerated("on", "off"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b, tc.typ); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	input := `{
		"id": 200,
		"flags": "101",
		"payload": "0aff",
		"mode": "off",
		"oid": "1.2.840.113549",
		"ratio": "-Infinity",
		"body": {"text": "hello"},
		"items": [true, false, true]
	}`
	want := Sequence{
		"id":      int64(200),
		"flags":   asn1.BitString{Bytes: []byte{0xA0}, BitLength: 3},
		"payload": []byte{0x0A, 0xFF},
		"mode":    "off",
		"oid":     asn1.ObjectIdentifier{1, 2, 840, 113549},
		"ratio":   math.Inf(-1),
		"body":    Choice{Name: "text", Value: "hello"},
		"items":   []any{true, false, true},
	}
	got, err := ParseJSON([]byte(input), message())
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseJSON() mismatch (-want +got):\n%s", diff)
	}

	out, err := MarshalJSON(got, message())
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	expected := `{"id":200,"flags":"101","payload":"0aff","mode":"off","oid":"1.2.840.113549",` +
		`"ratio":"-Infinity","body":{"text":"hello"},"items":[true,false,true]}`
	if string(out) != expected {
		t.Errorf("MarshalJSON() = %s\nwant %s", out, expected)
	}

	bad := []string{
		`{"id": 1.5}`,
		`{"flags": "102"}`,
		`{"payload": "zz"}`,
		`{"oid": "1"}`,
		`{"body": {"none": null, "text": "x"}}`,
		`{"body": {"other": 1}}`,
		`{"extra": 1}`,
		`[1]`,
		`{`,
	}
	for _, doc := range bad {
		if _, err := ParseJSON([]byte(doc), message()); !errors.Is(err, codec.ErrInvalidValue) {
			t.Errorf("ParseJSON(%s) error = %v, want ErrInvalidValue", doc, err)
		}
	}
}

func TestJSONScalars(t *testing.T) {
	typ := schema.Real()
	for doc, want := range map[string]float64{
		`"NaN"`:      math.NaN(),
		`"Infinity"`: math.Inf(1),
		`"-0"`:       math.Copysign(0, -1),
		`2.5`:        2.5,
	} {
		got, err := ParseJSON([]byte(doc), typ)
		if err != nil {
			t.Fatalf("ParseJSON(%s) error = %v", doc, err)
		}
		if !Equal(got, want, typ) {
			t.Errorf("ParseJSON(%s) = %v, want %v", doc, got, want)
		}
		out, err := MarshalJSON(got, typ)
		if err != nil {
			t.Fatalf("MarshalJSON(%v) error = %v", got, err)
		}
		if string(out) != doc {
			t.Errorf("MarshalJSON(%v) = %s, want %s", got, out, doc)
		}
	}

	out, err := MarshalJSON(nil, schema.Null())
	if err != nil || string(out) != "null" {
		t.Errorf("MarshalJSON(null) = %s, %v", out, err)
	}
}
