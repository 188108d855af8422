package per

import (
	"encoding/asn1"
	"fmt"
	"math"
	"math/bits"

	"github.com/thebagchi/uper-go/lib/bitbuffer"
	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/schema"
)

// Encoder writes UPER (unaligned PER) fields into a growing bit buffer.
// Fields are packed back to back without alignment; only Bytes pads the
// final octet.
type Encoder struct {
	codec  *bitbuffer.Codec
	config Config
}

// NewEncoder creates a new UPER encoder
func NewEncoder(config Config) *Encoder {
	e := &Encoder{
		codec:  bitbuffer.CreateWriter(),
		config: config,
	}
	e.codec.SetLimit(config.MaxBytes)
	return e
}

// Bytes returns the encoded bytes, with the final octet zero padded
func (e *Encoder) Bytes() []byte {
	return e.codec.Bytes()
}

// Pad fills the current octet with zero bits.
func (e *Encoder) Pad() error {
	return e.codec.Align()
}

// NumBits returns the number of bits written so far.
func (e *Encoder) NumBits() uint64 {
	return e.codec.NumWritten()
}

// Write appends the low num bits of value.
func (e *Encoder) Write(num uint8, value uint64) error {
	return e.codec.Write(num, value)
}

// WriteBytes appends whole octets at the current bit position.
func (e *Encoder) WriteBytes(data []byte) error {
	return e.codec.WriteBytes(data)
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", codec.ErrConstraintViolation, fmt.Sprintf(format, args...))
}

// bounds renders a size range for diagnostics.
func bounds(lb, ub *uint64) string {
	return fmt.Sprintf("(%s..%s)", drefOr(lb, "0"), drefOr(ub, "MAX"))
}

func drefOr(v *uint64, absent string) string {
	if v == nil {
		return absent
	}
	return fmt.Sprint(*v)
}

// 11.3 Encoding as a non-negative-binary-integer
// |- 11.3.6 A minimum octet non-negative-binary-integer encoding uses a
// |  |  multiple of eight bits whose leading eight bits are not all zero,
// |  |  unless the field is exactly eight bits long.

func BitsNonNegativeBinaryInteger(value uint64) int {
	if value == 0 {
		return 1
	}
	return bits.Len64(value)
}

func OctetsNonNegativeBinaryIntegerLength(value uint64) int {
	return (BitsNonNegativeBinaryInteger(value) + 7) >> 3
}

// 11.4 Encoding as a 2's-complement-binary-integer
// |- 11.4.6 A minimum octet 2's-complement-binary-integer encoding uses a
// |  |  multiple of eight bits whose leading nine bits are neither all zero
// |  |  nor all one.

func BitsTwosComplementBinaryInteger(value int64) int {
	if value == 0 {
		return 1
	}
	if value > 0 {
		return bits.Len64(uint64(value)) + 1
	}
	// ^value has the same magnitude bits as value without the sign
	return bits.Len64(uint64(^value)) + 1
}

func OctetsTwosComplementBinaryInteger(value int64) int {
	return (BitsTwosComplementBinaryInteger(value) + 7) >> 3
}

// 11.5 Encoding of a constrained whole number
// |- 11.5.3 Let "range" be ("ub" - "lb" + 1) and the value to be encoded "n".
// |- 11.5.4 A "range" of 1 encodes as an empty bit-field.
// |- 11.5.6 In the UNALIGNED variant ("n" - "lb") is a non-negative-binary-integer
// |  |  in the minimum number of bits that can represent the range.

func (e *Encoder) EncodeConstrainedWholeNumber(lb, ub, n int64) error {
	if ub < lb {
		return fmt.Errorf("%w: empty range %d..%d", codec.ErrInvalidValue, lb, ub)
	}
	if n < lb || n > ub {
		return violation("%d outside %d..%d", n, lb, ub)
	}
	width := constraint.Width(lb, ub)
	if width == 0 {
		return nil
	}
	return e.codec.Write(uint8(width), uint64(n)-uint64(lb))
}

// 11.6 Encoding of a normally small non-negative whole number
// |- 11.6.1 If "n" <= 63, a 0 bit followed by "n" in a 6-bit bit-field.
// |- 11.6.2 Otherwise a 1 bit followed by "n" as a semi-constrained whole number
// |  |  with "lb" = 0, preceded by a length determinant.

func (e *Encoder) EncodeNormallySmallNonNegativeWholeNumber(n uint64) error {
	if n <= MAX_NORMALLY_SMALL {
		// 11.6.1: the 0 bit and the 6-bit value as one 7-bit field
		return e.codec.Write(7, n)
	}
	if err := e.codec.Write(1, 1); err != nil {
		return err
	}
	return e.encodeNonNegative(n)
}

// 11.7 Encoding of a semi-constrained whole number
// |- 11.7.4 ("n" - "lb") is a non-negative-binary-integer in the minimum number
// |  |  of octets, preceded by a length determinant giving that number.

func (e *Encoder) EncodeSemiConstrainedWholeNumber(lb, n int64) error {
	if n < lb {
		return violation("%d below lower bound %d", n, lb)
	}
	return e.encodeNonNegative(uint64(n) - uint64(lb))
}

func (e *Encoder) encodeNonNegative(value uint64) error {
	octets := OctetsNonNegativeBinaryIntegerLength(value)
	if _, _, err := e.EncodeUnconstrainedLength(uint64(octets)); err != nil {
		return err
	}
	return e.codec.Write(uint8(octets*8), value)
}

// 11.8 Encoding of an unconstrained whole number
// |- 11.8.3 "n" is a 2's-complement-binary-integer in the minimum number of
// |  |  octets, preceded by a length determinant giving that number.

func (e *Encoder) EncodeUnconstrainedWholeNumber(n int64) error {
	octets := OctetsTwosComplementBinaryInteger(n)
	if _, _, err := e.EncodeUnconstrainedLength(uint64(octets)); err != nil {
		return err
	}
	return e.codec.Write(uint8(octets*8), uint64(n))
}

// 11.9 General rules for encoding a length determinant
// |- 11.9.3.3 / 11.9.4.1 When "ub" is less than 64K the length is a constrained
// |  |  whole number in the range "lb".."ub" (no bits at all if "lb" = "ub").
// |- 11.9.3.6 A length below 128 is one octet with the leading bit 0.
// |- 11.9.3.7 A length below 16K is two octets, the leading bits being 10.
// |- 11.9.3.8 Otherwise the leading bits 11 are followed by a 6-bit "m" (1 to 4):
// |  |  this fragment carries "m" times 16K units, and another length
// |  |  determinant always follows it, possibly for zero units.

// EncodeLengthDeterminant writes the length determinant for n units and
// reports how many of them it covers. more is true when the determinant is a
// fragment and another one must follow after the covered units.
func (e *Encoder) EncodeLengthDeterminant(n uint64, lb *uint64, ub *uint64) (uint64, bool, error) {
	if ub != nil && *ub < MAX_CONSTRAINED_LENGTH {
		low := uint64(0)
		if lb != nil {
			low = *lb
		}
		if n < low || n > *ub {
			return 0, false, violation("length %d outside %s", n, bounds(lb, ub))
		}
		return n, false, e.EncodeConstrainedWholeNumber(int64(low), int64(*ub), int64(n))
	}
	return e.EncodeUnconstrainedLength(n)
}

func (e *Encoder) EncodeUnconstrainedLength(n uint64) (uint64, bool, error) {
	if n <= 127 {
		return n, false, e.codec.Write(8, n)
	}
	if n < FRAGMENT_SIZE {
		return n, false, e.codec.Write(16, (1<<15)|n)
	}
	if e.config.NoFragmentation {
		return 0, false, fmt.Errorf("%w: length %d requires fragmentation", codec.ErrUnsupported, n)
	}
	m := CalculateFragmentSize(n)
	return m, true, e.codec.Write(8, (3<<6)|(m/FRAGMENT_SIZE))
}

// EncodeNormallySmallLength writes a length known to be at least 1 that is
// expected to be small, such as the size of the extension bitmap.
// |- 11.9.3.4 If "n" <= 64, a 0 bit followed by "n"-1 in a 6-bit bit-field;
// |  |  otherwise a 1 bit followed by the general length determinant.
func (e *Encoder) EncodeNormallySmallLength(n uint64) error {
	if n == 0 {
		return fmt.Errorf("%w: normally small length must be positive", codec.ErrInvalidValue)
	}
	if n <= 64 {
		return e.codec.Write(7, n-1)
	}
	if n >= FRAGMENT_SIZE {
		return fmt.Errorf("%w: normally small length %d", codec.ErrUnsupported, n)
	}
	if err := e.codec.Write(1, 1); err != nil {
		return err
	}
	_, _, err := e.EncodeUnconstrainedLength(n)
	return err
}

func CalculateFragmentSize(n uint64) uint64 {
	return min(n/FRAGMENT_SIZE, 4) * FRAGMENT_SIZE
}

// EncodeFragments writes count units behind length determinants, splitting
// them into fragments where required. put writes the units [from, to); it is
// called once per fragment, always with from a multiple of FRAGMENT_SIZE.
func (e *Encoder) EncodeFragments(count uint64, lb, ub *uint64, put func(from, to uint64) error) error {
	for offset := uint64(0); ; {
		n, more, err := e.EncodeLengthDeterminant(count-offset, lb, ub)
		if err != nil {
			return err
		}
		if n > 0 {
			if err := put(offset, offset+n); err != nil {
				return err
			}
		}
		offset += n
		if !more {
			return nil
		}
	}
}

// EncodeSized writes a count of units under the size constraint given by
// lb, ub and extensible, followed by the units themselves. It is the shared
// shape of bit strings, octet strings, character strings and SEQUENCE OF:
// |- An extensible size adds one bit, 1 when the count lies outside the root
// |  |  range; the count is then a semi-constrained length.
// |- A fixed size below 64K carries no length determinant at all.
// |- Otherwise the units follow a length determinant (11.9).
func (e *Encoder) EncodeSized(count uint64, lb, ub *uint64, extensible bool, put func(from, to uint64) error) error {
	root := (lb == nil || count >= *lb) && (ub == nil || count <= *ub)
	if extensible {
		if !root {
			if err := e.codec.Write(1, 1); err != nil {
				return err
			}
			return e.EncodeFragments(count, nil, nil, put)
		}
		if err := e.codec.Write(1, 0); err != nil {
			return err
		}
	} else if !root {
		return violation("size %d outside %s", count, bounds(lb, ub))
	}
	if lb != nil && ub != nil && *lb == *ub && *ub < MAX_CONSTRAINED_LENGTH {
		if count == 0 {
			return nil
		}
		return put(0, count)
	}
	return e.EncodeFragments(count, lb, ub, put)
}

// 12 Encoding the boolean type

func (e *Encoder) EncodeBoolean(value bool) error {
	if value {
		return e.codec.Write(1, 1)
	}
	return e.codec.Write(1, 0)
}

// 13 Encoding the integer type
// |- 13.1 With an extensible constraint a bit is added first: 0 when the value
// |  |  lies within the root range, 1 otherwise. Values outside the root are
// |  |  encoded as unconstrained whole numbers.
// |- 13.2.2 Bounded values are constrained whole numbers.
// |- 13.2.3 Values with only a lower bound are semi-constrained whole numbers.
// |- 13.2.4 Anything else is an unconstrained whole number.

func (e *Encoder) EncodeInteger(value int64, lb *int64, ub *int64, extensible bool) error {
	root := (lb == nil || value >= *lb) && (ub == nil || value <= *ub)
	if extensible {
		if !root {
			if err := e.codec.Write(1, 1); err != nil {
				return err
			}
			return e.EncodeUnconstrainedWholeNumber(value)
		}
		if err := e.codec.Write(1, 0); err != nil {
			return err
		}
	} else if !root {
		return violation("%d outside %s", value, constraint.Constraint{
			Min: deref(lb), Max: deref(ub), HasMin: lb != nil, HasMax: ub != nil,
		})
	}

	switch {
	case lb != nil && ub != nil:
		return e.EncodeConstrainedWholeNumber(*lb, *ub, value)
	case lb != nil:
		return e.EncodeSemiConstrainedWholeNumber(*lb, value)
	default:
		return e.EncodeUnconstrainedWholeNumber(value)
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// 14 Encoding the enumerated type
// |- 14.2 Root items are numbered 0..count-1 in declared order and encoded as a
// |  |  constrained whole number. An extensible enumeration adds a bit first.
// |- 14.3 Extension items are numbered from 0 and encoded as normally small
// |  |  non-negative whole numbers after a 1 bit.

// EncodeEnumerated writes the item with the given index. Indices at or
// above count address extension items.
func (e *Encoder) EncodeEnumerated(value uint64, count uint64, extensible bool) error {
	if count == 0 {
		return fmt.Errorf("%w: enumeration without items", codec.ErrInvalidValue)
	}
	if extensible {
		if value >= count {
			if err := e.codec.Write(1, 1); err != nil {
				return err
			}
			return e.EncodeNormallySmallNonNegativeWholeNumber(value - count)
		}
		if err := e.codec.Write(1, 0); err != nil {
			return err
		}
	} else if value >= count {
		return violation("enumeration index %d outside 0..%d", value, count-1)
	}
	return e.EncodeConstrainedWholeNumber(0, int64(count-1), int64(value))
}

// 15 Encoding the real type
// |- 15.2 The contents octets of the X.690 encoding (CER/DER canonical form,
// |  |  base 2) follow an unconstrained length determinant.
//
// 8.5 Encoding of a real value (X.690)
// |- 8.5.2 Plus zero has no contents octets.
// |- 8.5.7 Binary encoding: first octet 1 S BB FF EE, then the exponent in
// |  |  two's complement, then the mantissa N as an unsigned integer.
// |  |  Canonically B = 2, F = 0 and N is zero or odd.
// |- 8.5.9 Special values are one octet: 0x40 PLUS-INFINITY, 0x41
// |  |  MINUS-INFINITY, 0x42 NOT-A-NUMBER and 0x43 minus zero.

// MakeReal splits a finite, non-zero float64 into an odd mantissa and a
// base 2 exponent, value = mantissa * 2^exponent.
func MakeReal(value float64) (mantissa int64, exponent int) {
	if value == 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, 0
	}
	var (
		raw  = math.Float64bits(value)
		bexp = int((raw >> 52) & 0x7FF)
		frac = raw & (1<<52 - 1)
	)
	if bexp == 0 {
		// subnormal: 0.fraction * 2^-1022
		mantissa = int64(frac)
		exponent = -1022 - 52
	} else {
		mantissa = int64((1 << 52) | frac)
		exponent = bexp - 1023 - 52
	}
	shift := bits.TrailingZeros64(uint64(mantissa))
	mantissa >>= shift
	exponent += shift
	if raw>>63 == 1 {
		mantissa = -mantissa
	}
	return mantissa, exponent
}

// MakeFloat64 is the inverse of MakeReal.
func MakeFloat64(mantissa int64, exponent int) float64 {
	return math.Ldexp(float64(mantissa), exponent)
}

// RealContents returns the X.690 contents octets of value.
func RealContents(value float64) []byte {
	switch {
	case math.IsNaN(value):
		return []byte{0x42}
	case math.IsInf(value, 1):
		return []byte{0x40}
	case math.IsInf(value, -1):
		return []byte{0x41}
	case value == 0 && math.Signbit(value):
		return []byte{0x43}
	case value == 0:
		return []byte{}
	}

	mantissa, exponent := MakeReal(value)
	sign := uint64(0)
	if mantissa < 0 {
		sign, mantissa = 1, -mantissa
	}
	// The exponent of a float64 always fits in two octets.
	length := OctetsTwosComplementBinaryInteger(int64(exponent))

	temp := bitbuffer.CreateWriter()
	_ = temp.Write(1, 1)                // binary encoding
	_ = temp.Write(1, sign)             // S
	_ = temp.Write(2, 0)                // B: base 2
	_ = temp.Write(2, 0)                // F: no scaling
	_ = temp.Write(2, uint64(length-1)) // exponent format
	_ = temp.Write(uint8(length*8), uint64(int64(exponent)))
	_ = temp.Write(uint8(OctetsNonNegativeBinaryIntegerLength(uint64(mantissa))*8), uint64(mantissa))
	return temp.Bytes()
}

func (e *Encoder) EncodeReal(value float64) error {
	return e.EncodeOpenType(RealContents(value))
}

// 16 Encoding the bitstring type
// |- 16.8 A size constrained to zero encodes nothing; 16.9 and 16.10 place a
// |  |  fixed size below 64K directly in the field-list; 16.11 otherwise the
// |  |  bits follow a length determinant counting bits.

func (e *Encoder) EncodeBitString(value *asn1.BitString, lb *uint64, ub *uint64, extensible bool) error {
	if value.BitLength < 0 || len(value.Bytes)*8 < value.BitLength {
		return fmt.Errorf("%w: bit string of %d bits in %d octets", codec.ErrInvalidValue, value.BitLength, len(value.Bytes))
	}
	return e.EncodeSized(uint64(value.BitLength), lb, ub, extensible, func(from, to uint64) error {
		// from is octet aligned: fragments are multiples of 16K bits
		return e.codec.WriteBits(value.Bytes[from/8:], to-from)
	})
}

// 17 Encoding the octetstring type
// |- 17.5 to 17.8 mirror 16.8 to 16.11 with octets as the unit.

func (e *Encoder) EncodeOctetString(value []byte, lb *uint64, ub *uint64, extensible bool) error {
	return e.EncodeSized(uint64(len(value)), lb, ub, extensible, func(from, to uint64) error {
		return e.codec.WriteBytes(value[from:to])
	})
}

// EncodeOpenType writes data as an open type field: the octets follow an
// unconstrained length determinant (11.2, 11.9.3.8).
func (e *Encoder) EncodeOpenType(data []byte) error {
	return e.EncodeOctetString(data, nil, nil, false)
}

// 18 Encoding the null type

func (e *Encoder) EncodeNull() error {
	return nil
}

// 24 Encoding the object identifier type
// |- 24.1 The contents octets of the X.690 encoding follow an unconstrained
// |  |  length determinant.

func (e *Encoder) EncodeObjectIdentifier(oid asn1.ObjectIdentifier) error {
	data, err := asn1.Marshal(oid)
	if err != nil {
		return fmt.Errorf("%w: object identifier %v: %v", codec.ErrInvalidValue, oid, err)
	}
	// Drop the DER identifier and length octets
	if data[1]&0x80 == 0 {
		data = data[2:]
	} else {
		data = data[2+int(data[1]&0x7F):]
	}
	return e.EncodeOpenType(data)
}

// 30 Encoding the restricted character string types
// |- 30.5.2 Each character of a known-multiplier type occupies "b" bits, the
// |  |  smallest number that can represent every character of the effective
// |  |  permitted alphabet.
// |- 30.5.4 A character is encoded as its own code if the largest code fits in
// |  |  "b" bits, otherwise as its index in the canonical order of the
// |  |  alphabet.
// |- 30.5.7 The size constraint counts characters and is applied like 17.

func (e *Encoder) EncodeCharacterString(value string, alphabet *schema.Alphabet, lb *uint64, ub *uint64, extensible bool) error {
	var (
		chars = []rune(value)
		codes = make([]uint64, len(chars))
		width = uint8(alphabet.Bits())
	)
	for i, r := range chars {
		code, ok := alphabet.Encode(r)
		if !ok {
			return violation("character %q not in the permitted alphabet", r)
		}
		codes[i] = code
	}
	return e.EncodeSized(uint64(len(codes)), lb, ub, extensible, func(from, to uint64) error {
		for _, code := range codes[from:to] {
			if err := e.codec.Write(width, code); err != nil {
				return err
			}
		}
		return nil
	})
}

// EncodeString writes a character string that is not a known-multiplier
// type (UTF8String): its octets follow an unconstrained length determinant,
// since its size constraint is not PER-visible.
func (e *Encoder) EncodeString(value string) error {
	return e.EncodeOpenType([]byte(value))
}
