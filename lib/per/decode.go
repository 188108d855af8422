package per

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/thebagchi/uper-go/lib/bitbuffer"
	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/schema"
)

// Decoder reads UPER (unaligned PER) fields from a byte slice.
type Decoder struct {
	codec  *bitbuffer.Codec
	config Config
}

// NewDecoder creates a new UPER decoder from encoded data
func NewDecoder(data []byte, config Config) *Decoder {
	return &Decoder{
		codec:  bitbuffer.CreateReader(data),
		config: config,
	}
}

// NumBits returns the number of bits consumed so far.
func (d *Decoder) NumBits() uint64 {
	return d.codec.NumRead()
}

// Remaining returns the number of unread bits.
func (d *Decoder) Remaining() uint64 {
	return d.codec.Remaining()
}

// Read consumes num bits.
func (d *Decoder) Read(num uint8) (uint64, error) {
	return d.codec.Read(num)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", codec.ErrInvalidValue, fmt.Sprintf(format, args...))
}

// DecodeConstrainedWholeNumber decodes a constrained whole number
// with lower bound lb and upper bound ub.
func (d *Decoder) DecodeConstrainedWholeNumber(lb, ub int64) (int64, error) {
	if ub < lb {
		return 0, fmt.Errorf("%w: empty range %d..%d", codec.ErrInvalidValue, lb, ub)
	}
	width := constraint.Width(lb, ub)
	if width == 0 {
		return lb, nil
	}
	offset, err := d.codec.Read(uint8(width))
	if err != nil {
		return 0, err
	}
	if offset > uint64(ub)-uint64(lb) {
		return 0, violation("offset %d exceeds range %d..%d", offset, lb, ub)
	}
	return int64(uint64(lb) + offset), nil
}

// DecodeNormallySmallNonNegativeWholeNumber decodes a normally small
// non-negative whole number (11.6).
func (d *Decoder) DecodeNormallySmallNonNegativeWholeNumber() (uint64, error) {
	bit, err := d.codec.Read(1)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return d.codec.Read(6)
	}
	return d.decodeNonNegative()
}

// DecodeSemiConstrainedWholeNumber decodes a semi-constrained whole number
// with lower bound lb (11.7). Values that do not fit an int64 are rejected
// with codec.ErrUnsupported.
func (d *Decoder) DecodeSemiConstrainedWholeNumber(lb int64) (int64, error) {
	offset, err := d.decodeNonNegative()
	if err != nil {
		return 0, err
	}
	if offset > uint64(math.MaxInt64)-uint64(lb) {
		return 0, fmt.Errorf("%w: %d + %d exceeds 64 bits", codec.ErrUnsupported, lb, offset)
	}
	return int64(uint64(lb) + offset), nil
}

func (d *Decoder) decodeNonNegative() (uint64, error) {
	octets, err := d.decodeIntegerLength()
	if err != nil {
		return 0, err
	}
	return d.codec.Read(uint8(octets * 8))
}

// decodeIntegerLength reads the octet count of a whole number.
func (d *Decoder) decodeIntegerLength() (uint64, error) {
	octets, more, err := d.DecodeUnconstrainedLength()
	if err != nil {
		return 0, err
	}
	switch {
	case more || octets > 8:
		return 0, fmt.Errorf("%w: integer of %d octets exceeds 64 bits", codec.ErrUnsupported, octets)
	case octets == 0:
		return 0, malformed("integer without contents octets")
	}
	return octets, nil
}

// DecodeUnconstrainedWholeNumber decodes a 2's-complement whole number in
// the minimum number of octets (11.8).
func (d *Decoder) DecodeUnconstrainedWholeNumber() (int64, error) {
	octets, err := d.decodeIntegerLength()
	if err != nil {
		return 0, err
	}
	value, err := d.codec.Read(uint8(octets * 8))
	if err != nil {
		return 0, err
	}
	// Sign extend from the leading bit of the field
	shift := 64 - octets*8
	return int64(value<<shift) >> shift, nil
}

// DecodeLengthDeterminant decodes a length determinant.
// If ub is provided and below MAX_CONSTRAINED_LENGTH the length is a
// constrained whole number, otherwise the general form is read.
// Returns (length, hasMoreFragments, error).
func (d *Decoder) DecodeLengthDeterminant(lb, ub *uint64) (uint64, bool, error) {
	if ub != nil && *ub < MAX_CONSTRAINED_LENGTH {
		low := uint64(0)
		if lb != nil {
			low = *lb
		}
		if *ub < low {
			return 0, false, fmt.Errorf("%w: empty size range %s", codec.ErrInvalidValue, bounds(lb, ub))
		}
		value, err := d.DecodeConstrainedWholeNumber(int64(low), int64(*ub))
		if err != nil {
			return 0, false, err
		}
		return uint64(value), false, nil
	}
	return d.DecodeUnconstrainedLength()
}

// DecodeUnconstrainedLength decodes the general length determinant.
// hasMoreFragments is true after a fragment (leading bits 11), in which case
// another length determinant follows the fragment's units.
func (d *Decoder) DecodeUnconstrainedLength() (uint64, bool, error) {
	first, err := d.codec.Read(8)
	if err != nil {
		return 0, false, err
	}

	// 11.9.3.6: 0xxxxxxx, length 0-127
	if first&0x80 == 0 {
		return first, false, nil
	}

	// 11.9.3.7: 10xxxxxx xxxxxxxx, length 128-16383
	if first&0xC0 == 0x80 {
		second, err := d.codec.Read(8)
		if err != nil {
			return 0, false, err
		}
		return ((first & 0x3F) << 8) | second, false, nil
	}

	// 11.9.3.8: 11mmmmmm, a fragment of m*16K units
	if d.config.NoFragmentation {
		return 0, false, fmt.Errorf("%w: fragmented length", codec.ErrUnsupported)
	}
	m := first & 0x3F
	if m < 1 || m > 4 {
		return 0, false, malformed("fragment multiplier %d", m)
	}
	return m * FRAGMENT_SIZE, true, nil
}

// DecodeNormallySmallLength decodes a length of at least 1 that is
// expected to be small (11.9.3.4).
func (d *Decoder) DecodeNormallySmallLength() (uint64, error) {
	bit, err := d.codec.Read(1)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		value, err := d.codec.Read(6)
		if err != nil {
			return 0, err
		}
		return value + 1, nil
	}
	length, more, err := d.DecodeUnconstrainedLength()
	if err != nil {
		return 0, err
	}
	if more {
		return 0, fmt.Errorf("%w: fragmented normally small length", codec.ErrUnsupported)
	}
	return length, nil
}

// DecodeFragments reads length determinants and their units until a
// determinant that is not a fragment. get consumes n more units. Returns the
// total number of units.
func (d *Decoder) DecodeFragments(lb, ub *uint64, get func(n uint64) error) (uint64, error) {
	var total uint64
	for {
		n, more, err := d.DecodeLengthDeterminant(lb, ub)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			if err := get(n); err != nil {
				return 0, err
			}
		}
		total += n
		if !more {
			return total, nil
		}
	}
}

// DecodeSized is the counterpart of Encoder.EncodeSized.
func (d *Decoder) DecodeSized(lb, ub *uint64, extensible bool, get func(n uint64) error) (uint64, error) {
	if extensible {
		extended, err := d.codec.Read(1)
		if err != nil {
			return 0, err
		}
		if extended != 0 {
			return d.DecodeFragments(nil, nil, get)
		}
	}
	if lb != nil && ub != nil && *lb == *ub && *ub < MAX_CONSTRAINED_LENGTH {
		if *ub == 0 {
			return 0, nil
		}
		return *ub, get(*ub)
	}
	count, err := d.DecodeFragments(lb, ub, get)
	if err != nil {
		return 0, err
	}
	if (lb != nil && count < *lb) || (ub != nil && count > *ub) {
		return 0, violation("size %d outside %s", count, bounds(lb, ub))
	}
	return count, nil
}

// DecodeBoolean decodes a single bit, 1 for TRUE (12).
func (d *Decoder) DecodeBoolean() (bool, error) {
	bit, err := d.codec.Read(1)
	if err != nil {
		return false, err
	}
	return bit != 0, nil
}

// DecodeInteger decodes an integer value with optional bounds and
// extensibility (13).
func (d *Decoder) DecodeInteger(lb *int64, ub *int64, extensible bool) (int64, error) {
	if extensible {
		extended, err := d.codec.Read(1)
		if err != nil {
			return 0, err
		}
		if extended != 0 {
			return d.DecodeUnconstrainedWholeNumber()
		}
	}

	switch {
	case lb != nil && ub != nil:
		return d.DecodeConstrainedWholeNumber(*lb, *ub)
	case lb != nil:
		return d.DecodeSemiConstrainedWholeNumber(*lb)
	default:
		value, err := d.DecodeUnconstrainedWholeNumber()
		if err != nil {
			return 0, err
		}
		if ub != nil && value > *ub {
			return 0, violation("%d above upper bound %d", value, *ub)
		}
		return value, nil
	}
}

// DecodeEnumerated decodes an enumeration index (14). Indices at or above
// count address extension items; the caller checks them against the items
// it knows.
func (d *Decoder) DecodeEnumerated(count uint64, extensible bool) (uint64, error) {
	if count == 0 {
		return 0, fmt.Errorf("%w: enumeration without items", codec.ErrInvalidValue)
	}
	if extensible {
		extended, err := d.codec.Read(1)
		if err != nil {
			return 0, err
		}
		if extended != 0 {
			value, err := d.DecodeNormallySmallNonNegativeWholeNumber()
			if err != nil {
				return 0, err
			}
			return value + count, nil
		}
	}
	value, err := d.DecodeConstrainedWholeNumber(0, int64(count-1))
	if err != nil {
		return 0, err
	}
	return uint64(value), nil
}

// ParseRealContents decodes the X.690 contents octets of a REAL (8.5).
func ParseRealContents(contents []byte) (float64, error) {
	// 8.5.2: plus zero
	if len(contents) == 0 {
		return 0, nil
	}
	first := contents[0]

	// 8.5.9: special values
	if first&0xC0 == 0x40 {
		if len(contents) != 1 {
			return 0, malformed("special real value with %d octets", len(contents))
		}
		switch first {
		case 0x40:
			return math.Inf(1), nil
		case 0x41:
			return math.Inf(-1), nil
		case 0x42:
			return math.NaN(), nil
		case 0x43:
			return math.Copysign(0, -1), nil
		}
		return 0, malformed("special real value 0x%02x", first)
	}

	// 8.5.8: decimal encoding in ISO 6093 form NR1, NR2 or NR3
	if first&0x80 == 0 {
		text := strings.TrimSpace(string(contents[1:]))
		text = strings.Replace(text, ",", ".", 1)
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, malformed("decimal real %q", text)
		}
		return value, nil
	}

	// 8.5.7: binary encoding, first octet 1 S BB FF EE
	var (
		negative = first&0x40 != 0
		scale    = int((first >> 2) & 0x03)
		offset   = 1
		length   int
	)
	var shift int // log2 of the base
	switch (first >> 4) & 0x03 {
	case 0:
		shift = 1
	case 1:
		shift = 3
	case 2:
		shift = 4
	default:
		return 0, malformed("reserved real base")
	}

	// 8.5.7.4: exponent format
	switch first & 0x03 {
	case 0, 1, 2:
		length = int(first&0x03) + 1
	case 3:
		if len(contents) < 2 {
			return 0, malformed("truncated real exponent length")
		}
		length = int(contents[1])
		offset = 2
	}
	if length == 0 || length > 4 || offset+length > len(contents) {
		return 0, malformed("real exponent of %d octets", length)
	}
	var raw uint64
	for _, b := range contents[offset : offset+length] {
		raw = raw<<8 | uint64(b)
	}
	extend := 64 - uint(length*8)
	exponent := int(int64(raw<<extend) >> extend)
	offset += length

	// 8.5.7.5: mantissa N
	digits := contents[offset:]
	if len(digits) > 8 {
		return 0, fmt.Errorf("%w: real mantissa of %d octets", codec.ErrUnsupported, len(digits))
	}
	var mantissa uint64
	for _, b := range digits {
		mantissa = mantissa<<8 | uint64(b)
	}
	value := math.Ldexp(float64(mantissa), exponent*shift+scale)
	if negative {
		value = -value
	}
	return value, nil
}

// DecodeReal decodes a real value (15).
func (d *Decoder) DecodeReal() (float64, error) {
	contents, err := d.DecodeOpenType()
	if err != nil {
		return 0, err
	}
	return ParseRealContents(contents)
}

// DecodeBitString decodes a bitstring value (16).
func (d *Decoder) DecodeBitString(lb *uint64, ub *uint64, extensible bool) (*asn1.BitString, error) {
	var content bytes.Buffer
	count, err := d.DecodeSized(lb, ub, extensible, func(n uint64) error {
		// Every fragment but the last is a multiple of 8 bits
		fragment, err := d.codec.ReadBits(n)
		if err != nil {
			return err
		}
		content.Write(fragment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	data := content.Bytes()
	if data == nil {
		data = []byte{}
	}
	return &asn1.BitString{Bytes: data, BitLength: int(count)}, nil
}

// DecodeOctetString decodes an octet string value (17).
func (d *Decoder) DecodeOctetString(lb *uint64, ub *uint64, extensible bool) ([]byte, error) {
	content := []byte{}
	_, err := d.DecodeSized(lb, ub, extensible, func(n uint64) error {
		if n > d.codec.Remaining()/8 {
			return codec.ErrUnexpectedEndOfInput
		}
		fragment, err := d.codec.ReadBytes(int(n))
		if err != nil {
			return err
		}
		content = append(content, fragment...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// DecodeOpenType reads an open type field and returns its octets.
func (d *Decoder) DecodeOpenType() ([]byte, error) {
	return d.DecodeOctetString(nil, nil, false)
}

// DecodeNull decodes a NULL value, which occupies no bits (18).
func (d *Decoder) DecodeNull() error {
	return nil
}

// DecodeObjectIdentifier decodes an OBJECT IDENTIFIER (24).
func (d *Decoder) DecodeObjectIdentifier() (asn1.ObjectIdentifier, error) {
	contents, err := d.DecodeOpenType()
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, malformed("empty object identifier")
	}
	// Rebuild the DER encoding so encoding/asn1 can validate the arcs
	der := []byte{0x06}
	if n := len(contents); n < 0x80 {
		der = append(der, byte(n))
	} else {
		size := OctetsNonNegativeBinaryIntegerLength(uint64(n))
		der = append(der, 0x80|byte(size))
		for i := size - 1; i >= 0; i-- {
			der = append(der, byte(n>>(8*i)))
		}
	}
	der = append(der, contents...)
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(der, &oid); err != nil {
		return nil, malformed("object identifier: %v", err)
	}
	return oid, nil
}

// DecodeCharacterString decodes a known-multiplier character string (30).
func (d *Decoder) DecodeCharacterString(alphabet *schema.Alphabet, lb *uint64, ub *uint64, extensible bool) (string, error) {
	var (
		chars []rune
		width = uint8(alphabet.Bits())
	)
	_, err := d.DecodeSized(lb, ub, extensible, func(n uint64) error {
		if width > 0 && n > d.codec.Remaining()/uint64(width) {
			return codec.ErrUnexpectedEndOfInput
		}
		for range n {
			code, err := d.codec.Read(width)
			if err != nil {
				return err
			}
			r, ok := alphabet.Decode(code)
			if !ok {
				return violation("character code %d not in the permitted alphabet", code)
			}
			chars = append(chars, r)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(chars), nil
}

// DecodeString decodes a UTF8String, rejecting invalid UTF-8.
func (d *Decoder) DecodeString() (string, error) {
	octets, err := d.DecodeOpenType()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(octets) {
		return "", malformed("invalid UTF-8")
	}
	return string(octets), nil
}
