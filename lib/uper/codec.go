// Package uper implements the Unaligned Packed Encoding Rules (ITU-T X.691,
// UNALIGNED variant) over schema definitions.
//
// A single dispatch point selects the codec of each schema.Kind; the X.691
// field encodings themselves live in package per. Codec satisfies
// codec.Rule and is safe for concurrent use: every call owns its own bit
// buffer and the definitions it reads are never modified.
package uper

import (
	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/per"
	"github.com/thebagchi/uper-go/lib/schema"
)

// Options configures a Codec.
type Options struct {
	// MaxBytes bounds the size of an encoding. Encodes that would exceed it
	// fail with codec.ErrCapacity. 0 means unbounded.
	MaxBytes int

	// MaxDepth bounds the nesting depth of values during encode and decode.
	// Deeper values fail with codec.ErrDepthExceeded. 0 means unbounded.
	MaxDepth int

	// NoFragmentation rejects lengths of 16K units or more with
	// codec.ErrUnsupported instead of fragmenting them.
	NoFragmentation bool

	// EncodeDefaults encodes SEQUENCE members whose value equals their
	// DEFAULT as present. By default such members are omitted.
	EncodeDefaults bool
}

func (o Options) config() per.Config {
	return per.Config{
		MaxBytes:        o.MaxBytes,
		NoFragmentation: o.NoFragmentation,
	}
}

// Codec is the UPER encoding rule.
type Codec struct {
	options Options
}

var _ codec.Rule = (*Codec)(nil)

// New returns a Codec configured by optFns.
func New(optFns ...func(*Options)) *Codec {
	o := Options{}

	for _, fn := range optFns {
		fn(&o)
	}

	return &Codec{
		options: o,
	}
}

// Options returns the configuration of c.
func (c *Codec) Options() Options {
	return c.options
}

// Encode returns the complete encoding of v as an instance of t. An
// encoding of no bits is replaced by a single zero octet.
func (c *Codec) Encode(v any, t *schema.Type) ([]byte, error) {
	e := newEncoder(c.options, t.Label())
	return e.complete(v, t)
}

// Decode decodes one value of type t from the start of data and returns it
// with the number of bits consumed.
func (c *Codec) Decode(data []byte, t *schema.Type) (any, uint64, error) {
	d := newDecoder(c.options, data, t.Label())
	v, err := d.decode(t)
	if err != nil {
		return nil, d.NumBits(), err
	}
	return v, d.NumBits(), nil
}

// Marshal encodes v with c.
func (c *Codec) Marshal(v any, t *schema.Type) ([]byte, error) {
	return codec.Marshal(c, v, t)
}

// Unmarshal decodes data with c, rejecting trailing data.
func (c *Codec) Unmarshal(data []byte, t *schema.Type) (any, error) {
	return codec.Unmarshal(c, data, t)
}

var std = New()

// Marshal encodes v as an instance of t with the default options.
func Marshal(v any, t *schema.Type) ([]byte, error) {
	return std.Marshal(v, t)
}

// Unmarshal decodes data as exactly one value of type t with the default
// options.
func Unmarshal(data []byte, t *schema.Type) (any, error) {
	return std.Unmarshal(data, t)
}
