package per

import (
	"bytes"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/schema"
)

// BOOL represents a single test case from the JSON file
type BOOL struct {
	Input  bool   `json:"input"`
	Output string `json:"output"`
}

// INT represents a single integer test case from the JSON file
type INT struct {
	Input struct {
		Value      int64  `json:"value"`
		Lb         *int64 `json:"lb"`
		Ub         *int64 `json:"ub"`
		Extensible *bool  `json:"extensible"`
	} `json:"input"`
	Output string `json:"output"`
}

// LENGTH represents a length determinant test case
type LENGTH struct {
	Input struct {
		Value uint64  `json:"value"`
		Lb    *uint64 `json:"lb"`
		Ub    *uint64 `json:"ub"`
	} `json:"input"`
	Covered uint64 `json:"covered"`
	More    bool   `json:"more"`
	Output  string `json:"output"`
}

// SIZED represents a test case of a size constrained string type. Value is
// hex for octet strings, '0' and '1' for bit strings and the text itself for
// character strings.
type SIZED struct {
	Input struct {
		Kind       string  `json:"kind"`
		Alphabet   string  `json:"alphabet"`
		Value      string  `json:"value"`
		Lb         *uint64 `json:"lb"`
		Ub         *uint64 `json:"ub"`
		Extensible *bool   `json:"extensible"`
	} `json:"input"`
	Output string `json:"output"`
}

// ENUM represents an enumeration index test case
type ENUM struct {
	Input struct {
		Value      uint64 `json:"value"`
		Count      uint64 `json:"count"`
		Extensible bool   `json:"extensible"`
	} `json:"input"`
	Output string `json:"output"`
}

// TEXT is a test case whose input is written as a string: reals and
// object identifiers.
type TEXT struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (tc SIZED) name(prefix string) string {
	return strings.ToUpper(fmt.Sprintf("%s_%s_%q_LB_%s_UB_%s_EXTENSIBLE_%s", prefix, tc.Input.Kind,
		tc.Input.Value, dref(tc.Input.Lb), dref(tc.Input.Ub), dref(tc.Input.Extensible)))
}

func (tc SIZED) alphabet(t *testing.T) *schema.Alphabet {
	t.Helper()
	kind, ok := schema.ParseStringKind(tc.Input.Kind)
	if !ok {
		t.Fatalf("unknown string kind %q", tc.Input.Kind)
	}
	alphabet, ok := schema.CharacterString(kind, constraint.Unconstrained()).From(tc.Input.Alphabet).CharacterSet()
	if !ok {
		t.Fatalf("%s is not a known-multiplier type", tc.Input.Kind)
	}
	return alphabet
}

// bitString parses a string of '0' and '1'.
func bitString(s string) *asn1.BitString {
	bs := &asn1.BitString{Bytes: make([]byte, (len(s)+7)/8), BitLength: len(s)}
	for i, c := range s {
		if c == '1' {
			bs.Bytes[i/8] |= 0x80 >> (i % 8)
		}
	}
	return bs
}

// parseReal accepts the JSON names of the special values.
func parseReal(t *testing.T, s string) float64 {
	t.Helper()
	switch s {
	case "-0":
		return math.Copysign(0, -1)
	case "-Infinity":
		return math.Inf(-1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("invalid real %q: %v", s, err)
	}
	return v
}

func parseOID(t *testing.T, s string) asn1.ObjectIdentifier {
	t.Helper()
	var oid asn1.ObjectIdentifier
	for _, arc := range strings.Split(s, ".") {
		n, err := strconv.Atoi(arc)
		if err != nil {
			t.Fatalf("invalid arc %q: %v", arc, err)
		}
		oid = append(oid, n)
	}
	return oid
}

// expect compares the encoder output with the hex string of a test case.
func expect(t *testing.T, fn string, encoder *Encoder, output string) {
	t.Helper()
	expected, err := hex.DecodeString(output)
	if err != nil {
		t.Fatalf("Failed to decode expected output hex: %v", err)
	}
	if result := encoder.Bytes(); !bytes.Equal(result, expected) {
		t.Errorf("%s() = %x, expected %x", fn, result, expected)
	}
}

func TestWriteBool(t *testing.T) {
	var tests []BOOL
	load(t, "bool.json", &tests)

	for _, tc := range tests {
		name := strings.ToUpper(fmt.Sprintf("BOOL_VALUE_%v", tc.Input))
		t.Run(name, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeBoolean(tc.Input); err != nil {
				t.Fatalf("EncodeBoolean() error = %v", err)
			}
			expect(t, "EncodeBoolean", encoder, tc.Output)
		})
	}
}

func TestWriteInteger(t *testing.T) {
	var tests []INT
	load(t, "integer.json", &tests)

	for _, tc := range tests {
		name := strings.ToUpper(fmt.Sprintf("INTEGER_VALUE_%d_LB_%s_UB_%s_EXTENSIBLE_%s",
			tc.Input.Value, dref(tc.Input.Lb), dref(tc.Input.Ub), dref(tc.Input.Extensible)))
		t.Run(name, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			err := encoder.EncodeInteger(tc.Input.Value, tc.Input.Lb, tc.Input.Ub, flag(tc.Input.Extensible))
			if err != nil {
				t.Fatalf("EncodeInteger() error = %v", err)
			}
			expect(t, "EncodeInteger", encoder, tc.Output)
		})
	}
}

func TestWriteLength(t *testing.T) {
	var tests []LENGTH
	load(t, "length.json", &tests)

	for _, tc := range tests {
		name := strings.ToUpper(fmt.Sprintf("LENGTH_VALUE_%d_LB_%s_UB_%s",
			tc.Input.Value, dref(tc.Input.Lb), dref(tc.Input.Ub)))
		t.Run(name, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			covered, more, err := encoder.EncodeLengthDeterminant(tc.Input.Value, tc.Input.Lb, tc.Input.Ub)
			if err != nil {
				t.Fatalf("EncodeLengthDeterminant() error = %v", err)
			}
			if covered != tc.Covered || more != tc.More {
				t.Errorf("EncodeLengthDeterminant() = (%d, %v), expected (%d, %v)", covered, more, tc.Covered, tc.More)
			}
			expect(t, "EncodeLengthDeterminant", encoder, tc.Output)
		})
	}
}

func TestWriteOctetString(t *testing.T) {
	var tests []SIZED
	load(t, "octetstring.json", &tests)

	for _, tc := range tests {
		t.Run(tc.name("OCTET_STRING"), func(t *testing.T) {
			value, err := hex.DecodeString(tc.Input.Value)
			if err != nil {
				t.Fatalf("Failed to decode input hex: %v", err)
			}
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeOctetString(value, tc.Input.Lb, tc.Input.Ub, flag(tc.Input.Extensible)); err != nil {
				t.Fatalf("EncodeOctetString() error = %v", err)
			}
			expect(t, "EncodeOctetString", encoder, tc.Output)
		})
	}
}

func TestWriteBitString(t *testing.T) {
	var tests []SIZED
	load(t, "bitstring.json", &tests)

	for _, tc := range tests {
		t.Run(tc.name("BIT_STRING"), func(t *testing.T) {
			encoder := NewEncoder(Config{})
			err := encoder.EncodeBitString(bitString(tc.Input.Value), tc.Input.Lb, tc.Input.Ub, flag(tc.Input.Extensible))
			if err != nil {
				t.Fatalf("EncodeBitString() error = %v", err)
			}
			expect(t, "EncodeBitString", encoder, tc.Output)
		})
	}
}

func TestWriteCharacterString(t *testing.T) {
	var tests []SIZED
	load(t, "string.json", &tests)

	for _, tc := range tests {
		t.Run(tc.name("STRING"), func(t *testing.T) {
			encoder := NewEncoder(Config{})
			err := encoder.EncodeCharacterString(tc.Input.Value, tc.alphabet(t), tc.Input.Lb, tc.Input.Ub, flag(tc.Input.Extensible))
			if err != nil {
				t.Fatalf("EncodeCharacterString() error = %v", err)
			}
			expect(t, "EncodeCharacterString", encoder, tc.Output)
		})
	}
}

func TestWriteEnumerated(t *testing.T) {
	var tests []ENUM
	load(t, "enumerated.json", &tests)

	for _, tc := range tests {
		name := strings.ToUpper(fmt.Sprintf("ENUMERATED_VALUE_%d_COUNT_%d_EXTENSIBLE_%v",
			tc.Input.Value, tc.Input.Count, tc.Input.Extensible))
		t.Run(name, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeEnumerated(tc.Input.Value, tc.Input.Count, tc.Input.Extensible); err != nil {
				t.Fatalf("EncodeEnumerated() error = %v", err)
			}
			expect(t, "EncodeEnumerated", encoder, tc.Output)
		})
	}
}

func TestWriteReal(t *testing.T) {
	var tests []TEXT
	load(t, "real.json", &tests)

	for _, tc := range tests {
		t.Run(strings.ToUpper("REAL_"+tc.Input), func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeReal(parseReal(t, tc.Input)); err != nil {
				t.Fatalf("EncodeReal() error = %v", err)
			}
			expect(t, "EncodeReal", encoder, tc.Output)
		})
	}

	t.Run("REAL_TWO_OCTET_EXPONENT", func(t *testing.T) {
		encoder := NewEncoder(Config{})
		if err := encoder.EncodeReal(math.Ldexp(1, 200)); err != nil {
			t.Fatalf("EncodeReal() error = %v", err)
		}
		expect(t, "EncodeReal", encoder, "048100c801")
	})
}

func TestWriteObjectIdentifier(t *testing.T) {
	var tests []TEXT
	load(t, "oid.json", &tests)

	for _, tc := range tests {
		t.Run("OID_"+tc.Input, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeObjectIdentifier(parseOID(t, tc.Input)); err != nil {
				t.Fatalf("EncodeObjectIdentifier() error = %v", err)
			}
			expect(t, "EncodeObjectIdentifier", encoder, tc.Output)
		})
	}

	encoder := NewEncoder(Config{})
	if err := encoder.EncodeObjectIdentifier(asn1.ObjectIdentifier{3, 1}); !errors.Is(err, codec.ErrInvalidValue) {
		t.Errorf("EncodeObjectIdentifier(3.1) error = %v, want ErrInvalidValue", err)
	}
}

func TestWriteNormallySmall(t *testing.T) {
	test := func(value uint64, output string, description string) {
		t.Run(description, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeNormallySmallNonNegativeWholeNumber(value); err != nil {
				t.Fatalf("EncodeNormallySmallNonNegativeWholeNumber() error = %v", err)
			}
			expect(t, "EncodeNormallySmallNonNegativeWholeNumber", encoder, output)
		})
	}
	test(5, "0a", "5 in the short form")
	test(63, "7e", "63 is the largest short form")
	test(64, "80a000", "64 uses the semi-constrained form")

	length := func(value uint64, output string, description string) {
		t.Run(description, func(t *testing.T) {
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeNormallySmallLength(value); err != nil {
				t.Fatalf("EncodeNormallySmallLength() error = %v", err)
			}
			expect(t, "EncodeNormallySmallLength", encoder, output)
		})
	}
	length(1, "00", "length 1")
	length(64, "7e", "length 64")
	length(65, "a080", "length 65 uses the general form")

	if err := NewEncoder(Config{}).EncodeNormallySmallLength(0); !errors.Is(err, codec.ErrInvalidValue) {
		t.Errorf("EncodeNormallySmallLength(0) error = %v, want ErrInvalidValue", err)
	}
}

// fragmented builds the expected encoding of an unconstrained octet string
// of n octets filled by fill.
func fragmented(n int, fill func(i int) byte) (value []byte, encoded []byte) {
	value = make([]byte, n)
	for i := range value {
		value[i] = fill(i)
	}
	rest := value
	for {
		chunk := min(len(rest)/FRAGMENT_SIZE, 4) * FRAGMENT_SIZE
		switch {
		case chunk > 0:
			encoded = append(encoded, 0xC0|byte(chunk/FRAGMENT_SIZE))
		case len(rest) < 128:
			encoded = append(encoded, byte(len(rest)))
		default:
			encoded = append(encoded, 0x80|byte(len(rest)>>8), byte(len(rest)))
		}
		if chunk == 0 {
			return value, append(encoded, rest...)
		}
		encoded = append(encoded, rest[:chunk]...)
		rest = rest[chunk:]
	}
}

func TestWriteFragments(t *testing.T) {
	test := func(n int, size int, description string) {
		t.Run(description, func(t *testing.T) {
			value, expected := fragmented(n, func(i int) byte { return byte(i * 7) })
			if len(expected) != size {
				t.Fatalf("fragmented(%d) built %d octets, want %d", n, len(expected), size)
			}
			encoder := NewEncoder(Config{})
			if err := encoder.EncodeOctetString(value, nil, nil, false); err != nil {
				t.Fatalf("EncodeOctetString() error = %v", err)
			}
			if result := encoder.Bytes(); !bytes.Equal(result, expected) {
				t.Errorf("EncodeOctetString(%d octets) mismatch: got %d octets starting %x", n, len(result), result[:min(len(result), 4)])
			}
		})
	}
	test(16383, 16385, "largest unfragmented length")
	test(16384, 16386, "one fragment then a zero length")
	test(32773, 32775, "two fragments then 5 octets")
	test(65536, 65538, "four fragments then a zero length")
	test(70000, 70003, "four fragments then 4464 octets")
	test(147456, 147460, "nine fragments")

	t.Run("DISABLED", func(t *testing.T) {
		encoder := NewEncoder(Config{NoFragmentation: true})
		err := encoder.EncodeOctetString(make([]byte, FRAGMENT_SIZE), nil, nil, false)
		if !errors.Is(err, codec.ErrUnsupported) {
			t.Errorf("EncodeOctetString() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("BIT_STRING", func(t *testing.T) {
		// 16K bits then a short remainder of 3 bits
		bs := &asn1.BitString{Bytes: bytes.Repeat([]byte{0xFF}, FRAGMENT_SIZE/8+1), BitLength: FRAGMENT_SIZE + 3}
		encoder := NewEncoder(Config{})
		if err := encoder.EncodeBitString(bs, nil, nil, false); err != nil {
			t.Fatalf("EncodeBitString() error = %v", err)
		}
		result := encoder.Bytes()
		if len(result) != 1+FRAGMENT_SIZE/8+2 {
			t.Fatalf("EncodeBitString() returned %d bytes", len(result))
		}
		if result[0] != 0xC1 || result[FRAGMENT_SIZE/8+1] != 0x03 || result[FRAGMENT_SIZE/8+2] != 0xE0 {
			t.Errorf("EncodeBitString() framing = %x %x %x", result[0], result[FRAGMENT_SIZE/8+1], result[FRAGMENT_SIZE/8+2])
		}
	})
}

func TestWriteErrors(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }
	i := func(v int64) *int64 { return &v }
	test := func(name string, want error, fn func(e *Encoder) error) {
		t.Run(name, func(t *testing.T) {
			if err := fn(NewEncoder(Config{})); !errors.Is(err, want) {
				t.Errorf("error = %v, want %v", err, want)
			}
		})
	}
	test("INTEGER_ABOVE_RANGE", codec.ErrConstraintViolation, func(e *Encoder) error {
		return e.EncodeInteger(8, i(0), i(7), false)
	})
	test("INTEGER_BELOW_LB", codec.ErrConstraintViolation, func(e *Encoder) error {
		return e.EncodeInteger(-1, i(0), nil, false)
	})
	test("OCTET_STRING_SIZE", codec.ErrConstraintViolation, func(e *Encoder) error {
		return e.EncodeOctetString([]byte{1, 2, 3}, u(4), u(4), false)
	})
	test("ENUMERATED_INDEX", codec.ErrConstraintViolation, func(e *Encoder) error {
		return e.EncodeEnumerated(3, 3, false)
	})
	test("CHARACTER", codec.ErrConstraintViolation, func(e *Encoder) error {
		alphabet, _ := schema.CharacterString(schema.NumericString, constraint.Unconstrained()).CharacterSet()
		return e.EncodeCharacterString("12a", alphabet, nil, nil, false)
	})
	test("BIT_STRING_SHORT", codec.ErrInvalidValue, func(e *Encoder) error {
		return e.EncodeBitString(&asn1.BitString{Bytes: []byte{0xFF}, BitLength: 9}, nil, nil, false)
	})
	test("CAPACITY", codec.ErrCapacity, func(e *Encoder) error {
		limited := NewEncoder(Config{MaxBytes: 2})
		return limited.EncodeOctetString([]byte{1, 2, 3}, nil, nil, false)
	})
}
