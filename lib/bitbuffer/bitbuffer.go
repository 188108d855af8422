// Package bitbuffer provides bit-level I/O for the Unaligned Packed Encoding
// Rules (UPER, ITU-T X.691).
//
// # Overview
//
// The Codec type manages streaming bit-level encoding and decoding with MSB-first
// bit ordering. It supports writing and reading arbitrary bit lengths (0-64 bits),
// byte-granular bulk operations, and byte boundary alignment.
//
// # Key Features
//
//   - Fast paths for byte-aligned operations using encoding/binary.BigEndian
//   - Slow paths for general bit-packing/unpacking
//   - Dynamic buffer growth with exponential allocation strategy
//   - Optional upper bound on the buffer size (ErrCapacity instead of growth)
//   - Absolute bit positions for both directions, so a reader can be marked
//     and rewound
//   - MSB-first bit ordering (most significant bit first, as X.691 requires)
//
// # Scope
//
// This package focuses on bit-level manipulation. Callers are responsible for
// higher-level ASN.1 semantics, type encoding, and constraint validation.
//
// # Thread Safety
//
// Codec is NOT thread-safe. A Codec owns its buffer for the duration of one
// encode or decode operation; each goroutine should use its own Codec.
package bitbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

const (
	// ENABLE_TRACE controls whether trace records are emitted
	ENABLE_TRACE = false

	// BITS_PER_BYTE is the number of bits in a byte
	BITS_PER_BYTE = 8

	// TMP_ARRAY_SIZE is the size of temporary arrays used for binary operations
	TMP_ARRAY_SIZE = 8
)

// InitialBufferSize is the initial capacity for the buffer in CreateWriter.
var InitialBufferSize = 64

var (
	// ErrUnexpectedEnd is returned when a read needs more bits than remain.
	ErrUnexpectedEnd = errors.New("unexpected end of input")

	// ErrCapacity is returned when a write would grow the buffer past the
	// limit configured with SetLimit.
	ErrCapacity = errors.New("buffer capacity exceeded")

	// ErrBitCount is returned for bit counts above 64.
	ErrBitCount = errors.New("bit count must be between 0 and 64")
)

// Codec manages a bit stream for encoding and decoding.
// Fields:
//
//	Buff: byte slice holding the encoded bit stream
//	written: total number of bits written (the write position)
//	read: total number of bits read (the read position)
//	limit: maximum buffer length in bytes, 0 for unbounded
//
// The final byte of a writer is always zero-padded; bits are OR-ed into
// freshly appended zero bytes.
type Codec struct {
	Buff    []byte
	written uint64
	read    uint64
	limit   int
}

// Trace emits a debug record describing the codec state.
// Only emits if ENABLE_TRACE is true (compile-time constant).
// Parameters:
//   - event: "ENTER" or "EXIT" to mark function entry/exit
//   - function: name of the calling function (e.g., "Write", "Read")
//   - arguments: optional additional debug info (e.g., "bits=8 value=42")
func (c *Codec) Trace(event, function, arguments string) {
	if !ENABLE_TRACE {
		return
	}
	slog.Debug("bitbuffer",
		slog.String("event", event),
		slog.String("function", function),
		slog.Int("len", len(c.Buff)),
		slog.Uint64("written", c.written),
		slog.Uint64("read", c.read),
		slog.String("arguments", arguments))
}

// CreateWriter creates a new Codec for writing.
// Initializes with an empty buffer and pre-allocates capacity (InitialBufferSize)
// to reduce early allocations.
func CreateWriter() *Codec {
	return &Codec{
		Buff: make([]byte, 0, InitialBufferSize),
	}
}

// CreateReader creates a new Codec for reading from existing data.
// Reading starts at bit 0 of data[0].
func CreateReader(data []byte) *Codec {
	return &Codec{
		Buff: data,
	}
}

// SetLimit bounds the buffer of a writer to n bytes. Writes that would need
// more room fail with ErrCapacity and leave the codec unchanged. n <= 0
// removes the bound.
func (c *Codec) SetLimit(n int) {
	c.limit = max(n, 0)
}

// NumWritten returns the total number of bits written.
// Includes partial bytes. For example, writing 3 bits then 5 bits returns 8.
func (c *Codec) NumWritten() uint64 {
	return c.written
}

// NumRead returns the total number of bits read, which is also the absolute
// read position.
func (c *Codec) NumRead() uint64 {
	return c.read
}

// Remaining returns the number of bits left to read.
func (c *Codec) Remaining() uint64 {
	return uint64(len(c.Buff))*BITS_PER_BYTE - c.read
}

// Seek moves the read position to an absolute bit offset previously obtained
// from NumRead. Positions past the end of the buffer are rejected.
func (c *Codec) Seek(position uint64) error {
	if position > uint64(len(c.Buff))*BITS_PER_BYTE {
		return ErrUnexpectedEnd
	}
	c.read = position
	return nil
}

// Bytes returns the encoded data. The final byte is zero padded when written
// is not a multiple of 8. Returns nil when nothing was written.
func (c *Codec) Bytes() []byte {
	if c.written == 0 {
		return nil
	}
	return c.Buff
}

// String implements the fmt.Stringer interface for Codec.
func (c *Codec) String() string {
	return fmt.Sprintf("Codec{Buff: len=%d, written: %d, read: %d}",
		len(c.Buff), c.written, c.read)
}

// offset returns the bit position inside the current write byte (0-7).
func (c *Codec) offset() uint8 {
	return uint8(c.written & 7)
}

// reserve checks that num more bits fit under the configured limit.
func (c *Codec) reserve(num uint64) error {
	if c.limit == 0 {
		return nil
	}
	if (c.written+num+7)>>3 > uint64(c.limit) {
		return ErrCapacity
	}
	return nil
}

// grow appends n zero bytes to the buffer.
// Uses exponential growth strategy: capacity = max(current_capacity * 2, needed_size),
// which keeps appends O(1) amortized.
func (c *Codec) grow(n int) {
	if ENABLE_TRACE {
		c.Trace("ENTER", "grow", fmt.Sprintf("n=%d", n))
		defer c.Trace("EXIT", "grow", "")
	}
	if cap(c.Buff) < len(c.Buff)+n {
		capacity := max(cap(c.Buff)*2, len(c.Buff)+n)
		c.Buff = slices.Grow(c.Buff, capacity-len(c.Buff))
	}
	c.Buff = c.Buff[:len(c.Buff)+n]
	clear(c.Buff[len(c.Buff)-n:])
}

// Write writes the least significant 'num' bits of value (0 ≤ num ≤ 64).
// num=0 writes nothing. MSB-first bit ordering: most significant bits written first.
//
// Fast path: O(1) amortized when byte-aligned.
// Slow path: packs chunk by chunk when mid-byte.
func (c *Codec) Write(num uint8, value uint64) error {
	if ENABLE_TRACE {
		c.Trace("ENTER", "Write", fmt.Sprintf("bits=%d value=%d", num, value))
		defer c.Trace("EXIT", "Write", "")
	}
	if num > 64 {
		return ErrBitCount
	}
	if num == 0 {
		return nil
	}
	if err := c.reserve(uint64(num)); err != nil {
		return err
	}

	// Keep only the least significant 'num' bits
	if num < 64 {
		value = value & ((1 << num) - 1)
	}

	if c.offset() == 0 {
		var (
			nbytes = (int(num) + 7) >> 3 // = ceil(num/8)
			tmp    = [TMP_ARRAY_SIZE]byte{}
		)
		binary.BigEndian.PutUint64(tmp[:], value<<(64-uint(num)))
		c.Buff = append(c.Buff, tmp[:nbytes]...)
		c.written += uint64(num)
		return nil
	}

	pending := num
	for pending > 0 {
		if c.offset() == 0 {
			c.grow(1)
		}

		var (
			available = 8 - c.offset() // Bits available in current byte
			nbits     = min(pending, available)
			remaining = pending - nbits
			chunk     = uint8(value>>remaining) & ((1 << nbits) - 1)
			shift     = available - nbits
			pos       = len(c.Buff) - 1
		)

		c.Buff[pos] = c.Buff[pos] | (chunk << shift)
		c.written += uint64(nbits)
		pending = pending - nbits
	}
	return nil
}

// Read reads the next num bits from the bit stream, returning them as a uint64.
// num=0 returns 0 without error. num > 64 returns ErrBitCount.
// MSB-first bit ordering: most significant bits read first.
// Returns ErrUnexpectedEnd if fewer than num bits remain; the position is
// left unchanged in that case.
func (c *Codec) Read(num uint8) (uint64, error) {
	if ENABLE_TRACE {
		c.Trace("ENTER", "Read", fmt.Sprintf("num=%d", num))
		defer c.Trace("EXIT", "Read", "")
	}
	if num > 64 {
		return 0, ErrBitCount
	}
	if num == 0 {
		return 0, nil
	}
	if c.Remaining() < uint64(num) {
		return 0, ErrUnexpectedEnd
	}

	if c.read&7 == 0 {
		var (
			index  = c.read >> 3
			nbytes = (uint64(num) + 7) >> 3 // = ceil(num/8)
			tmp    = [TMP_ARRAY_SIZE]byte{}
		)
		copy(tmp[:nbytes], c.Buff[index:index+nbytes])
		c.read += uint64(num)
		return binary.BigEndian.Uint64(tmp[:]) >> (64 - uint(num)), nil
	}

	var (
		result  uint64
		pending = num
	)
	for pending > 0 {
		var (
			index     = c.read >> 3
			remaining = 8 - uint8(c.read&7) // Bits left in current byte
			reading   = min(pending, remaining)
			shift     = remaining - reading
			bits      = uint64(c.Buff[index]>>shift) & ((1 << reading) - 1)
		)
		result = (result << reading) | bits
		c.read += uint64(reading)
		pending = pending - reading
	}
	return result, nil
}

// WriteBytes writes full octets continuing from the current bit offset.
// Equivalent to repeated Write(8, uint64(b)) for each byte.
// Fast path: if byte-aligned, appends directly.
// Slow path: if mid-byte, packs each byte via Write().
func (c *Codec) WriteBytes(data []byte) error {
	if ENABLE_TRACE {
		c.Trace("ENTER", "WriteBytes", fmt.Sprintf("len(data)=%d", len(data)))
		defer c.Trace("EXIT", "WriteBytes", "")
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.reserve(uint64(len(data)) * BITS_PER_BYTE); err != nil {
		return err
	}

	if c.offset() == 0 {
		c.Buff = append(c.Buff, data...)
		c.written += uint64(len(data)) * BITS_PER_BYTE
		return nil
	}

	for _, b := range data {
		if err := c.Write(8, uint64(b)); err != nil {
			return err
		}
	}
	return nil
}

// ReadBytes reads exactly n full octets from the bit stream, continuing from
// the current bit offset. Returns ErrUnexpectedEnd if fewer than n*8 bits remain.
func (c *Codec) ReadBytes(n int) ([]byte, error) {
	if ENABLE_TRACE {
		c.Trace("ENTER", "ReadBytes", fmt.Sprintf("n=%d", n))
		defer c.Trace("EXIT", "ReadBytes", "")
	}
	if n < 0 {
		return nil, errors.New("negative byte count")
	}
	if n == 0 {
		return []byte{}, nil
	}
	if c.Remaining() < uint64(n)*BITS_PER_BYTE {
		return nil, ErrUnexpectedEnd
	}

	result := make([]byte, n)
	if c.read&7 == 0 {
		index := c.read >> 3
		copy(result, c.Buff[index:index+uint64(n)])
		c.read += uint64(n) * BITS_PER_BYTE
		return result, nil
	}

	for i := range result {
		val, err := c.Read(8)
		if err != nil {
			return nil, err
		}
		result[i] = uint8(val)
	}
	return result, nil
}

// WriteBits writes the leading count bits of data, MSB first. Bits of the
// last byte beyond count are ignored.
func (c *Codec) WriteBits(data []byte, count uint64) error {
	if count == 0 {
		return nil
	}
	if uint64(len(data))*BITS_PER_BYTE < count {
		return fmt.Errorf("bitbuffer: %d bits requested from %d bytes", count, len(data))
	}
	num := count / 8
	if num > 0 {
		if err := c.WriteBytes(data[:num]); err != nil {
			return err
		}
	}
	remaining := uint8(count % 8)
	if remaining > 0 {
		return c.Write(remaining, uint64(data[num]>>(8-remaining)))
	}
	return nil
}

// ReadBits reads count bits and returns them left-aligned in a byte slice of
// ceil(count/8) bytes; unused trailing bits are zero.
func (c *Codec) ReadBits(count uint64) ([]byte, error) {
	if count == 0 {
		return []byte{}, nil
	}
	if c.Remaining() < count {
		return nil, ErrUnexpectedEnd
	}
	num := count / 8
	result, err := c.ReadBytes(int(num))
	if err != nil {
		return nil, err
	}
	remaining := uint8(count % 8)
	if remaining > 0 {
		value, err := c.Read(remaining)
		if err != nil {
			return nil, err
		}
		result = append(result, uint8(value<<(8-remaining)))
	}
	return result, nil
}

// Align pads the write position to the next byte boundary with zero bits.
// If already aligned, does nothing.
func (c *Codec) Align() error {
	if ENABLE_TRACE {
		c.Trace("ENTER", "Align", "")
		defer c.Trace("EXIT", "Align", "")
	}
	if offset := c.offset(); offset > 0 {
		// The partial byte already exists and its unused bits are zero
		c.written += uint64(8 - offset)
	}
	return nil
}
