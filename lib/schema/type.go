// Package schema holds the resolved, constraint-annotated definition tree of
// ASN.1 types that encoding rules operate on.
//
// A Type is a closed tagged variant selected by its Kind. Constructed types
// own their member and element Types; recursive definitions are expressed by
// KindReference nodes that a Module binds to named definitions once, before
// any encoding or decoding takes place. Types carry no per-call state and are
// safe for concurrent use once constructed (and, for modules, resolved).
//
// The tree is independent of any encoding rule: it stores declared bounds and
// extension markers, never field widths.
package schema

import (
	"errors"
	"fmt"

	"github.com/thebagchi/uper-go/lib/constraint"
)

// ErrInvalidDefinition is returned for structurally inconsistent type definitions.
var ErrInvalidDefinition = errors.New("invalid type definition")

// maxReferenceHops bounds alias chains followed by Resolve.
const maxReferenceHops = 64

// Type is a node of the definition tree. Only the fields relevant to Kind
// are consulted.
type Type struct {
	Kind Kind

	// Name is the referenced definition for KindReference. For other kinds it
	// is an optional label used in diagnostics.
	Name string

	// Value is the value range of KindInteger.
	Value constraint.Constraint

	// Size is the size constraint of KindBitString, KindOctetString,
	// KindCharacterString and KindSequenceOf.
	Size constraint.Constraint

	// String and Alphabet describe KindCharacterString. Alphabet is the
	// permitted alphabet (FROM constraint); empty means the whole character
	// set of String.
	String   StringKind
	Alphabet string

	// Enumerals are the root items of KindEnumerated in declared order,
	// ExtensionEnumerals the items following the extension marker.
	Enumerals          []string
	ExtensionEnumerals []string

	// Members of KindSequence and Variants of KindChoice, in declared order.
	Members  []Member
	Variants []Variant

	// Element is the component type of KindSequenceOf.
	Element *Type

	// Extensible marks an extension marker on KindSequence, KindChoice and
	// KindEnumerated.
	Extensible bool

	target   *Type
	alphabet *Alphabet
}

// Member is a component of a SEQUENCE.
type Member struct {
	Name     string
	Type     *Type
	Optional bool

	// Default is the DEFAULT value, nil when none is declared. Members with a
	// default are treated like optional members for presence purposes.
	Default any

	// Extension marks a member declared after the extension marker.
	Extension bool
}

// Variant is an alternative of a CHOICE.
type Variant struct {
	Name      string
	Type      *Type
	Extension bool
}

// Null returns the NULL type.
func Null() *Type { return &Type{Kind: KindNull} }

// Boolean returns the BOOLEAN type.
func Boolean() *Type { return &Type{Kind: KindBoolean} }

// Integer returns an INTEGER constrained by c.
func Integer(c constraint.Constraint) *Type {
	return &Type{Kind: KindInteger, Value: c}
}

// Real returns the REAL type.
func Real() *Type { return &Type{Kind: KindReal} }

// ObjectIdentifier returns the OBJECT IDENTIFIER type.
func ObjectIdentifier() *Type { return &Type{Kind: KindObjectIdentifier} }

// Enumerated returns a non-extensible ENUMERATED with the given items.
func Enumerated(names ...string) *Type {
	return &Type{Kind: KindEnumerated, Enumerals: names}
}

// ExtensibleEnumerated returns an ENUMERATED with an extension marker after
// root, followed by the extension items additions.
func ExtensibleEnumerated(root []string, additions ...string) *Type {
	return &Type{Kind: KindEnumerated, Enumerals: root, ExtensionEnumerals: additions, Extensible: true}
}

// BitString returns a BIT STRING with size constraint c.
func BitString(c constraint.Constraint) *Type {
	return &Type{Kind: KindBitString, Size: c}
}

// OctetString returns an OCTET STRING with size constraint c.
func OctetString(c constraint.Constraint) *Type {
	return &Type{Kind: KindOctetString, Size: c}
}

// CharacterString returns a restricted character string type of the given
// kind with size constraint c.
func CharacterString(kind StringKind, c constraint.Constraint) *Type {
	t := &Type{Kind: KindCharacterString, String: kind, Size: c}
	t.alphabet = newAlphabet(kind, "")
	return t
}

// From sets the permitted alphabet of a character string type and returns t.
func (t *Type) From(chars string) *Type {
	t.Alphabet = chars
	t.alphabet = newAlphabet(t.String, chars)
	return t
}

// Sequence returns a non-extensible SEQUENCE.
func Sequence(members ...Member) *Type {
	return &Type{Kind: KindSequence, Members: members}
}

// ExtensibleSequence returns a SEQUENCE with an extension marker. Members
// flagged with Extension follow the marker.
func ExtensibleSequence(members ...Member) *Type {
	return &Type{Kind: KindSequence, Members: members, Extensible: true}
}

// Choice returns a non-extensible CHOICE.
func Choice(variants ...Variant) *Type {
	return &Type{Kind: KindChoice, Variants: variants}
}

// ExtensibleChoice returns a CHOICE with an extension marker. Variants
// flagged with Extension follow the marker.
func ExtensibleChoice(variants ...Variant) *Type {
	return &Type{Kind: KindChoice, Variants: variants, Extensible: true}
}

// SequenceOf returns a SEQUENCE OF element with size constraint c.
func SequenceOf(element *Type, c constraint.Constraint) *Type {
	return &Type{Kind: KindSequenceOf, Element: element, Size: c}
}

// Ref returns a reference to the definition called name. References are
// bound by Module.Resolve.
func Ref(name string) *Type {
	return &Type{Kind: KindReference, Name: name}
}

// Field returns a mandatory member.
func Field(name string, t *Type) Member {
	return Member{Name: name, Type: t}
}

// Optional returns an OPTIONAL member.
func Optional(name string, t *Type) Member {
	return Member{Name: name, Type: t, Optional: true}
}

// Defaulted returns a member with a DEFAULT value.
func Defaulted(name string, t *Type, value any) Member {
	return Member{Name: name, Type: t, Default: value}
}

// AsExtension returns m marked as an extension addition.
func (m Member) AsExtension() Member {
	m.Extension = true
	return m
}

// HasPresenceBit reports whether m occupies a bit of the root presence bitmap.
func (m Member) HasPresenceBit() bool {
	return !m.Extension && (m.Optional || m.Default != nil)
}

// Alternative returns a CHOICE alternative.
func Alternative(name string, t *Type) Variant {
	return Variant{Name: name, Type: t}
}

// AsExtension returns v marked as an extension addition.
func (v Variant) AsExtension() Variant {
	v.Extension = true
	return v
}

// Resolve follows references and returns the definition t stands for. It
// returns nil for an unbound reference.
func (t *Type) Resolve() *Type {
	for range maxReferenceHops {
		if t == nil || t.Kind != KindReference {
			return t
		}
		t = t.target
	}
	return nil
}

// Label returns a short name for diagnostics.
func (t *Type) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// RootMembers returns the members preceding the extension marker.
func (t *Type) RootMembers() []Member {
	root := make([]Member, 0, len(t.Members))
	for _, m := range t.Members {
		if !m.Extension {
			root = append(root, m)
		}
	}
	return root
}

// ExtensionMembers returns the extension additions of a SEQUENCE.
func (t *Type) ExtensionMembers() []Member {
	var additions []Member
	for _, m := range t.Members {
		if m.Extension {
			additions = append(additions, m)
		}
	}
	return additions
}

// RootVariants returns the alternatives preceding the extension marker.
func (t *Type) RootVariants() []Variant {
	root := make([]Variant, 0, len(t.Variants))
	for _, v := range t.Variants {
		if !v.Extension {
			root = append(root, v)
		}
	}
	return root
}

// ExtensionVariants returns the extension alternatives of a CHOICE.
func (t *Type) ExtensionVariants() []Variant {
	var additions []Variant
	for _, v := range t.Variants {
		if v.Extension {
			additions = append(additions, v)
		}
	}
	return additions
}

// CharacterSet returns the effective alphabet of a known-multiplier
// character string type. It reports false for UTF8String, whose characters
// are not packed individually.
func (t *Type) CharacterSet() (*Alphabet, bool) {
	a := t.alphabet
	if a == nil || a.kind != t.String || a.source != t.Alphabet {
		a = newAlphabet(t.String, t.Alphabet)
	}
	return a, a.KnownMultiplier()
}

// Validate checks t and its components for structural consistency.
// References are not followed.
func (t *Type) Validate() error {
	return t.walk(func(n *Type) error { return n.validateNode() })
}

// walk visits t and every component type in depth-first order, without
// following references.
func (t *Type) walk(visit func(*Type) error) error {
	if t == nil {
		return fmt.Errorf("%w: missing type", ErrInvalidDefinition)
	}
	if err := visit(t); err != nil {
		return err
	}
	switch t.Kind {
	case KindSequence:
		for _, m := range t.Members {
			if err := m.Type.walk(visit); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Label(), m.Name, err)
			}
		}
	case KindChoice:
		for _, v := range t.Variants {
			if err := v.Type.walk(visit); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Label(), v.Name, err)
			}
		}
	case KindSequenceOf:
		if err := t.Element.walk(visit); err != nil {
			return fmt.Errorf("%s[]: %w", t.Label(), err)
		}
	}
	return nil
}

func (t *Type) validateNode() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, t.Label(), fmt.Sprintf(format, args...))
	}
	switch t.Kind {
	case KindNull, KindBoolean, KindReal, KindObjectIdentifier:
	case KindInteger:
		if err := t.Value.Validate(false); err != nil {
			return invalid("%v", err)
		}
	case KindBitString, KindOctetString:
		if err := t.Size.Validate(true); err != nil {
			return invalid("%v", err)
		}
	case KindCharacterString:
		if err := t.Size.Validate(true); err != nil {
			return invalid("%v", err)
		}
		if t.String > UniversalString {
			return invalid("unknown character string kind %d", t.String)
		}
		if a, _ := t.CharacterSet(); a.err != nil {
			return invalid("%v", a.err)
		}
	case KindEnumerated:
		if len(t.Enumerals) == 0 {
			return invalid("no enumeration items")
		}
		if !t.Extensible && len(t.ExtensionEnumerals) > 0 {
			return invalid("extension items without extension marker")
		}
		if err := unique(append(append([]string{}, t.Enumerals...), t.ExtensionEnumerals...)); err != nil {
			return invalid("%v", err)
		}
	case KindSequence:
		names := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			if m.Extension && !t.Extensible {
				return invalid("extension member %q without extension marker", m.Name)
			}
			names = append(names, m.Name)
		}
		if err := unique(names); err != nil {
			return invalid("%v", err)
		}
	case KindChoice:
		names := make([]string, 0, len(t.Variants))
		root := 0
		for _, v := range t.Variants {
			if v.Extension && !t.Extensible {
				return invalid("extension alternative %q without extension marker", v.Name)
			}
			if !v.Extension {
				root++
			}
			names = append(names, v.Name)
		}
		if root == 0 {
			return invalid("no root alternatives")
		}
		if err := unique(names); err != nil {
			return invalid("%v", err)
		}
	case KindSequenceOf:
		if err := t.Size.Validate(true); err != nil {
			return invalid("%v", err)
		}
	case KindReference:
		if t.Name == "" {
			return invalid("reference without a name")
		}
	default:
		return invalid("unknown kind %s", t.Kind)
	}
	return nil
}

func unique(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return errors.New("empty name")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
