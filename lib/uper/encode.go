package uper

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/thebagchi/uper-go/lib/codec"
	"github.com/thebagchi/uper-go/lib/per"
	"github.com/thebagchi/uper-go/lib/schema"
	"github.com/thebagchi/uper-go/lib/value"
)

// encoder carries the state of one Encode call.
type encoder struct {
	*per.Encoder
	options Options

	path  []string // components leading to the current value
	depth int
	base  uint64 // bit offset of this buffer within the outermost encoding
}

func newEncoder(options Options, label string) *encoder {
	return &encoder{
		Encoder: per.NewEncoder(options.config()),
		options: options,
		path:    []string{label},
	}
}

// nested returns an encoder for the contents of an open type at the
// current position.
func (e *encoder) nested() *encoder {
	return &encoder{
		Encoder: per.NewEncoder(e.options.config()),
		options: e.options,
		path:    slices.Clone(e.path),
		depth:   e.depth,
		base:    e.base + e.NumBits(),
	}
}

// fail annotates err with the current location unless an inner call
// already did.
func (e *encoder) fail(err error) error {
	var located *codec.Error
	if errors.As(err, &located) {
		return err
	}
	return &codec.Error{
		Op:        "encode",
		Path:      strings.Join(e.path, ""),
		BitOffset: e.base + e.NumBits(),
		Err:       err,
	}
}

func (e *encoder) enter(component string) {
	e.path = append(e.path, component)
}

func (e *encoder) leave() {
	e.path = e.path[:len(e.path)-1]
}

// complete normalizes v and returns its complete encoding (11.1).
func (e *encoder) complete(v any, t *schema.Type) ([]byte, error) {
	nv, err := value.Normalize(v, t)
	if err != nil {
		return nil, e.fail(err)
	}
	if err := e.encode(nv, t); err != nil {
		return nil, err
	}
	if err := e.Pad(); err != nil {
		return nil, e.fail(err)
	}
	data := e.Bytes()
	if len(data) == 0 {
		return []byte{0x00}, nil
	}
	return data, nil
}

// encode is the single dispatch point over the kinds of the definition tree.
// v is in the canonical representation of package value.
func (e *encoder) encode(v any, t *schema.Type) error {
	r := t.Resolve()
	if r == nil {
		return e.fail(fmt.Errorf("%w: %s", codec.ErrUnresolvedReference, t.Name))
	}
	e.depth++
	defer func() { e.depth-- }()
	if e.options.MaxDepth > 0 && e.depth > e.options.MaxDepth {
		return e.fail(fmt.Errorf("%w: %d", codec.ErrDepthExceeded, e.options.MaxDepth))
	}

	var err error
	switch r.Kind {
	case schema.KindNull:
		err = e.EncodeNull()
	case schema.KindBoolean:
		err = e.EncodeBoolean(v.(bool))
	case schema.KindInteger:
		lb, ub := r.Value.Bounds()
		err = e.EncodeInteger(v.(int64), lb, ub, r.Value.Extensible)
	case schema.KindEnumerated:
		err = e.encodeEnumerated(v.(string), r)
	case schema.KindReal:
		err = e.EncodeReal(v.(float64))
	case schema.KindBitString:
		bs := v.(asn1.BitString)
		lb, ub := r.Size.SizeBounds()
		err = e.EncodeBitString(&bs, lb, ub, r.Size.Extensible)
	case schema.KindOctetString:
		lb, ub := r.Size.SizeBounds()
		err = e.EncodeOctetString(v.([]byte), lb, ub, r.Size.Extensible)
	case schema.KindCharacterString:
		err = e.encodeCharacterString(v.(string), r)
	case schema.KindObjectIdentifier:
		err = e.EncodeObjectIdentifier(v.(asn1.ObjectIdentifier))
	case schema.KindSequence:
		return e.encodeSequence(v.(value.Sequence), r)
	case schema.KindChoice:
		return e.encodeChoice(v.(value.Choice), r)
	case schema.KindSequenceOf:
		return e.encodeSequenceOf(v.([]any), r)
	default:
		err = fmt.Errorf("%w: kind %s", codec.ErrUnsupported, r.Kind)
	}
	if err != nil {
		return e.fail(err)
	}
	return nil
}

func (e *encoder) encodeEnumerated(name string, t *schema.Type) error {
	count := uint64(len(t.Enumerals))
	if i := slices.Index(t.Enumerals, name); i >= 0 {
		return e.EncodeEnumerated(uint64(i), count, t.Extensible)
	}
	if i := slices.Index(t.ExtensionEnumerals, name); i >= 0 && t.Extensible {
		return e.EncodeEnumerated(count+uint64(i), count, true)
	}
	return fmt.Errorf("%w: %q is not an item of %s", codec.ErrInvalidValue, name, t.Label())
}

func (e *encoder) encodeCharacterString(s string, t *schema.Type) error {
	if t.String == schema.UTF8String {
		return e.EncodeString(s)
	}
	alphabet, ok := t.CharacterSet()
	if !ok {
		return fmt.Errorf("%w: %s has no usable alphabet", schema.ErrInvalidDefinition, t.Label())
	}
	lb, ub := t.Size.SizeBounds()
	return e.EncodeCharacterString(s, alphabet, lb, ub, t.Size.Extensible)
}

// present reports whether member m of s is encoded, and its value.
func (e *encoder) present(s value.Sequence, m schema.Member) (any, bool) {
	v, ok := s[m.Name]
	if !ok {
		return nil, false
	}
	if m.Default != nil && !e.options.EncodeDefaults && value.Equal(v, m.Default, m.Type) {
		return nil, false
	}
	return v, true
}

// 19 Encoding the sequence type
// |- 19.1 An extensible sequence starts with a bit, 1 when any extension
// |  |  addition is present.
// |- 19.2 A bit-map of the OPTIONAL and DEFAULT root components follows, in
// |  |  declared order, 1 meaning present.
// |- 19.3 Then the present root components.
// |- 19.7 When the extension bit is 1, the number of extension additions as a
// |  |  normally small length, a bit-map of their presence, and each present
// |  |  addition as an open type field.
func (e *encoder) encodeSequence(s value.Sequence, t *schema.Type) error {
	var (
		root      = t.RootMembers()
		additions = t.ExtensionMembers()
		extended  = false
	)
	for _, m := range root {
		if _, ok := s[m.Name]; !ok && !m.Optional && m.Default == nil {
			return e.fail(fmt.Errorf("%w: mandatory member %q of %s is absent",
				codec.ErrInvalidValue, m.Name, t.Label()))
		}
	}
	for _, m := range additions {
		if _, ok := e.present(s, m); ok {
			extended = true
		}
	}

	if t.Extensible {
		if err := e.EncodeBoolean(extended); err != nil {
			return e.fail(err)
		}
	}
	for _, m := range root {
		if !m.HasPresenceBit() {
			continue
		}
		_, ok := e.present(s, m)
		if err := e.EncodeBoolean(ok); err != nil {
			return e.fail(err)
		}
	}
	for _, m := range root {
		v, ok := e.present(s, m)
		if !ok {
			continue
		}
		e.enter("." + m.Name)
		err := e.encode(v, m.Type)
		e.leave()
		if err != nil {
			return err
		}
	}
	if !extended {
		return nil
	}

	if err := e.EncodeNormallySmallLength(uint64(len(additions))); err != nil {
		return e.fail(err)
	}
	for _, m := range additions {
		_, ok := e.present(s, m)
		if err := e.EncodeBoolean(ok); err != nil {
			return e.fail(err)
		}
	}
	for _, m := range additions {
		v, ok := e.present(s, m)
		if !ok {
			continue
		}
		e.enter("." + m.Name)
		err := e.encodeOpenType(v, m.Type)
		e.leave()
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeOpenType writes the complete encoding of v behind a length
// determinant, so that decoders that do not know t can skip it.
func (e *encoder) encodeOpenType(v any, t *schema.Type) error {
	inner := e.nested()
	if err := inner.encode(v, t); err != nil {
		return err
	}
	if err := inner.Pad(); err != nil {
		return inner.fail(err)
	}
	data := inner.Bytes()
	if len(data) == 0 {
		data = []byte{0x00}
	}
	if err := e.EncodeOpenType(data); err != nil {
		return e.fail(err)
	}
	return nil
}

// 23 Encoding the choice type
// |- 23.5 An extensible choice starts with a bit, 1 when the chosen
// |  |  alternative is an extension addition.
// |- 23.6 A root alternative is identified by its index as a constrained
// |  |  whole number in 0..n-1, no bits at all when n is 1.
// |- 23.8 An addition is identified by a normally small non-negative whole
// |  |  number and its value is an open type field.
func (e *encoder) encodeChoice(c value.Choice, t *schema.Type) error {
	root := t.RootVariants()
	e.enter("." + c.Name)
	defer e.leave()

	if i := slices.IndexFunc(root, func(v schema.Variant) bool { return v.Name == c.Name }); i >= 0 {
		if t.Extensible {
			if err := e.EncodeBoolean(false); err != nil {
				return e.fail(err)
			}
		}
		if err := e.EncodeConstrainedWholeNumber(0, int64(len(root)-1), int64(i)); err != nil {
			return e.fail(err)
		}
		return e.encode(c.Value, root[i].Type)
	}

	additions := t.ExtensionVariants()
	i := slices.IndexFunc(additions, func(v schema.Variant) bool { return v.Name == c.Name })
	if i < 0 || !t.Extensible {
		return e.fail(fmt.Errorf("%w: %q is not an alternative of %s", codec.ErrInvalidValue, c.Name, t.Label()))
	}
	if err := e.EncodeBoolean(true); err != nil {
		return e.fail(err)
	}
	if err := e.EncodeNormallySmallNonNegativeWholeNumber(uint64(i)); err != nil {
		return e.fail(err)
	}
	return e.encodeOpenType(c.Value, additions[i].Type)
}

// 20 Encoding the sequence-of type
// |- 20.6 The count of components is a length determinant under the SIZE
// |  |  constraint, fragmented like the octets of 17 when it is large.
func (e *encoder) encodeSequenceOf(items []any, t *schema.Type) error {
	lb, ub := t.Size.SizeBounds()
	err := e.EncodeSized(uint64(len(items)), lb, ub, t.Size.Extensible, func(from, to uint64) error {
		for i := from; i < to; i++ {
			e.enter("[" + strconv.FormatUint(i, 10) + "]")
			err := e.encode(items[i], t.Element)
			e.leave()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}
	return nil
}
