package uper

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/per"
	"github.com/thebagchi/uper-go/lib/schema"
	"github.com/thebagchi/uper-go/lib/value"
)

// decoder carries the state of one Decode call.
type decoder struct {
	*per.Decoder
	options Options

	path  []string
	depth int
	base  uint64
}

func newDecoder(options Options, data []byte, label string) *decoder {
	return &decoder{
		Decoder: per.NewDecoder(data, options.config()),
		options: options,
		path:    []string{label},
	}
}

// nested returns a decoder over the contents of an open type that started
// at bit offset start of d.
func (d *decoder) nested(data []byte, start uint64) *decoder {
	return &decoder{
		Decoder: per.NewDecoder(data, d.options.config()),
		options: d.options,
		path:    slices.Clone(d.path),
		depth:   d.depth,
		base:    d.base + start,
	}
}

func (d *decoder) fail(err error) error {
	var located *codec.Error
	if errors.As(err, &located) {
		return err
	}
	return &codec.Error{
		Op:        "decode",
		Path:      strings.Join(d.path, ""),
		BitOffset: d.base + d.NumBits(),
		Err:       err,
	}
}

func (d *decoder) enter(component string) {
	d.path = append(d.path, component)
}

func (d *decoder) leave() {
	d.path = d.path[:len(d.path)-1]
}

// decode mirrors encoder.encode and returns values in the canonical
// representation of package value.
func (d *decoder) decode(t *schema.Type) (any, error) {
	r := t.Resolve()
	if r == nil {
		return nil, d.fail(fmt.Errorf("%w: %s", codec.ErrUnresolvedReference, t.Name))
	}
	d.depth++
	defer func() { d.depth-- }()
	if d.options.MaxDepth > 0 && d.depth > d.options.MaxDepth {
		return nil, d.fail(fmt.Errorf("%w: %d", codec.ErrDepthExceeded, d.options.MaxDepth))
	}

	var (
		v   any
		err error
	)
	switch r.Kind {
	case schema.KindNull:
		v, err = value.Null{}, d.DecodeNull()
	case schema.KindBoolean:
		v, err = d.DecodeBoolean()
	case schema.KindInteger:
		lb, ub := r.Value.Bounds()
		v, err = d.DecodeInteger(lb, ub, r.Value.Extensible)
	case schema.KindEnumerated:
		v, err = d.decodeEnumerated(r)
	case schema.KindReal:
		v, err = d.DecodeReal()
	case schema.KindBitString:
		lb, ub := r.Size.SizeBounds()
		bs, derr := d.DecodeBitString(lb, ub, r.Size.Extensible)
		if derr != nil {
			return nil, d.fail(derr)
		}
		v = *bs
	case schema.KindOctetString:
		lb, ub := r.Size.SizeBounds()
		v, err = d.DecodeOctetString(lb, ub, r.Size.Extensible)
	case schema.KindCharacterString:
		v, err = d.decodeCharacterString(r)
	case schema.KindObjectIdentifier:
		v, err = d.DecodeObjectIdentifier()
	case schema.KindSequence:
		return d.decodeSequence(r)
	case schema.KindChoice:
		return d.decodeChoice(r)
	case schema.KindSequenceOf:
		return d.decodeSequenceOf(r)
	default:
		err = fmt.Errorf("%w: kind %s", codec.ErrUnsupported, r.Kind)
	}
	if err != nil {
		return nil, d.fail(err)
	}
	return v, nil
}

func (d *decoder) decodeEnumerated(t *schema.Type) (string, error) {
	count := uint64(len(t.Enumerals))
	index, err := d.DecodeEnumerated(count, t.Extensible)
	if err != nil {
		return "", err
	}
	if index < count {
		return t.Enumerals[index], nil
	}
	if index-count < uint64(len(t.ExtensionEnumerals)) {
		return t.ExtensionEnumerals[index-count], nil
	}
	return "", fmt.Errorf("%w: extension item %d of %s", codec.ErrUnknownChoiceVariant, index-count, t.Label())
}

func (d *decoder) decodeCharacterString(t *schema.Type) (string, error) {
	if t.String == schema.UTF8String {
		return d.DecodeString()
	}
	alphabet, ok := t.CharacterSet()
	if !ok {
		return "", fmt.Errorf("%w: %s has no usable alphabet", schema.ErrInvalidDefinition, t.Label())
	}
	lb, ub := t.Size.SizeBounds()
	return d.DecodeCharacterString(alphabet, lb, ub, t.Size.Extensible)
}

// fill sets member m of s to its default value.
func (d *decoder) fill(s value.Sequence, m schema.Member) error {
	if m.Default == nil {
		return nil
	}
	v, err := value.Normalize(m.Default, m.Type)
	if err != nil {
		return d.fail(fmt.Errorf("%w: default of %q: %v", schema.ErrInvalidDefinition, m.Name, err))
	}
	s[m.Name] = v
	return nil
}

func (d *decoder) decodeSequence(t *schema.Type) (any, error) {
	var (
		root      = t.RootMembers()
		additions = t.ExtensionMembers()
		extended  bool
		err       error
	)
	if t.Extensible {
		if extended, err = d.DecodeBoolean(); err != nil {
			return nil, d.fail(err)
		}
	}

	present := make([]bool, len(root))
	for i, m := range root {
		if !m.HasPresenceBit() {
			present[i] = true
			continue
		}
		if present[i], err = d.DecodeBoolean(); err != nil {
			return nil, d.fail(err)
		}
	}

	s := make(value.Sequence, len(root))
	for i, m := range root {
		if !present[i] {
			if err := d.fill(s, m); err != nil {
				return nil, err
			}
			continue
		}
		d.enter("." + m.Name)
		v, err := d.decode(m.Type)
		d.leave()
		if err != nil {
			return nil, err
		}
		s[m.Name] = v
	}

	if !extended {
		for _, m := range additions {
			if err := d.fill(s, m); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	// Additions unknown to t are counted by the bitmap and skipped.
	count, err := d.DecodeNormallySmallLength()
	if err != nil {
		return nil, d.fail(err)
	}
	bitmap := make([]bool, count)
	seen := false
	for i := range bitmap {
		if bitmap[i], err = d.DecodeBoolean(); err != nil {
			return nil, d.fail(err)
		}
		seen = seen || bitmap[i]
	}
	if !seen {
		return nil, d.fail(fmt.Errorf("%w: extension bit set but no addition present", codec.ErrMalformedSequence))
	}
	for i, ok := range bitmap {
		var m *schema.Member
		if i < len(additions) {
			m = &additions[i]
		}
		if !ok {
			if m != nil {
				if err := d.fill(s, *m); err != nil {
					return nil, err
				}
			}
			continue
		}
		start := d.NumBits()
		data, err := d.DecodeOpenType()
		if err != nil {
			return nil, d.fail(err)
		}
		if m == nil {
			continue
		}
		d.enter("." + m.Name)
		v, err := d.decodeOpenType(data, start, m.Type)
		d.leave()
		if err != nil {
			return nil, err
		}
		s[m.Name] = v
	}
	for _, m := range additions[min(len(additions), len(bitmap)):] {
		if err := d.fill(s, m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// decodeOpenType decodes a value of type t from the contents of an open
// type field.
func (d *decoder) decodeOpenType(data []byte, start uint64, t *schema.Type) (any, error) {
	inner := d.nested(data, start)
	return inner.decode(t)
}

func (d *decoder) decodeChoice(t *schema.Type) (any, error) {
	var (
		root     = t.RootVariants()
		extended bool
		err      error
	)
	if t.Extensible {
		if extended, err = d.DecodeBoolean(); err != nil {
			return nil, d.fail(err)
		}
	}

	if !extended {
		if len(root) == 0 {
			return nil, d.fail(fmt.Errorf("%w: %s has no alternatives", schema.ErrInvalidDefinition, t.Label()))
		}
		// Read the raw index so that values above n-1 report an unknown
		// alternative rather than a range violation.
		index, err := d.Read(uint8(constraint.Width(0, len(root)-1)))
		if err != nil {
			return nil, d.fail(err)
		}
		if index >= uint64(len(root)) {
			return nil, d.fail(fmt.Errorf("%w: index %d of %s", codec.ErrUnknownChoiceVariant, index, t.Label()))
		}
		variant := root[index]
		d.enter("." + variant.Name)
		v, err := d.decode(variant.Type)
		d.leave()
		if err != nil {
			return nil, err
		}
		return value.Choice{Name: variant.Name, Value: v}, nil
	}

	index, err := d.DecodeNormallySmallNonNegativeWholeNumber()
	if err != nil {
		return nil, d.fail(err)
	}
	start := d.NumBits()
	data, err := d.DecodeOpenType()
	if err != nil {
		return nil, d.fail(err)
	}
	additions := t.ExtensionVariants()
	if index >= uint64(len(additions)) {
		return nil, d.fail(fmt.Errorf("%w: extension index %d of %s", codec.ErrUnknownChoiceVariant, index, t.Label()))
	}
	variant := additions[index]
	d.enter("." + variant.Name)
	v, err := d.decodeOpenType(data, start, variant.Type)
	d.leave()
	if err != nil {
		return nil, err
	}
	return value.Choice{Name: variant.Name, Value: v}, nil
}

func (d *decoder) decodeSequenceOf(t *schema.Type) (any, error) {
	lb, ub := t.Size.SizeBounds()
	items := []any{}
	_, err := d.DecodeSized(lb, ub, t.Size.Extensible, func(n uint64) error {
		for range n {
			d.enter("[" + strconv.Itoa(len(items)) + "]")
			v, err := d.decode(t.Element)
			d.leave()
			if err != nil {
				return err
			}
			items = append(items, v)
		}
		return nil
	})
	if err != nil {
		return nil, d.fail(err)
	}
	return items, nil
}
