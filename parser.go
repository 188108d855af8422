// Package uper_go loads type-definition documents produced by an ASN.1
// compiler front end into resolved schema modules.
//
// A document is JSON:
//
//	{
//	  "module": "Example",
//	  "definitions": [
//	    {"name": "Message", "type": {"kind": "SEQUENCE", "members": [...]}}
//	  ]
//	}
//
// Type nodes carry a "kind" (any schema.Kind name, e.g. "INTEGER",
// "SEQUENCE OF", "REFERENCE", or a character string type such as
// "IA5String") and the fields relevant to it.
package uper_go

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/thebagchi/uper-go/lib/constraint"
	"github.com/thebagchi/uper-go/lib/schema"
	"github.com/thebagchi/uper-go/lib/value"
)

type document struct {
	Module      string       `json:"module"`
	Definitions []definition `json:"definitions"`
}

type definition struct {
	Name string `json:"name"`
	Type *node  `json:"type"`
}

type bounds struct {
	Min        *int64 `json:"min"`
	Max        *int64 `json:"max"`
	Extensible bool   `json:"extensible"`
}

type member struct {
	Name      string          `json:"name"`
	Type      *node           `json:"type"`
	Optional  bool            `json:"optional"`
	Default   json.RawMessage `json:"default"`
	Extension bool            `json:"extension"`
}

type node struct {
	Kind string `json:"kind"`

	// Name is the target of a REFERENCE.
	Name string `json:"name"`

	Range *bounds `json:"range"`
	Size  *bounds `json:"size"`

	String string `json:"string"`
	From   string `json:"from"`

	Items          []string `json:"items"`
	ExtensionItems []string `json:"extensionItems"`

	Members      []member `json:"members"`
	Alternatives []member `json:"alternatives"`
	Element      *node    `json:"element"`

	Extensible bool `json:"extensible"`
}

// pending is a DEFAULT value waiting for its member type to be resolved.
type pending struct {
	owner *schema.Type
	index int
	raw   any
}

type loader struct {
	defaults []pending
}

// Parse loads the definition document in filename.
func Parse(filename string) (*schema.Module, error) {
	file, err := os.Open(filename)
	if nil != err {
		return nil, err
	}
	defer file.Close()
	return ParseReader(file)
}

// ParseReader loads a definition document from r, resolves its references
// and converts member defaults to values of their types.
func ParseReader(r io.Reader) (*schema.Module, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); nil != err {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidDefinition, err)
	}

	l := &loader{}
	module := schema.NewModule(doc.Module)
	for _, def := range doc.Definitions {
		t, err := l.build(def.Type)
		if nil != err {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		if err := module.Define(def.Name, t); nil != err {
			return nil, err
		}
	}
	if err := module.Resolve(); nil != err {
		return nil, err
	}

	for _, p := range l.defaults {
		m := &p.owner.Members[p.index]
		v, err := value.FromJSON(p.raw, m.Type)
		if nil != err {
			return nil, fmt.Errorf("%w: %s.%s default: %v", schema.ErrInvalidDefinition, p.owner.Label(), m.Name, err)
		}
		if v, err = value.Normalize(v, m.Type); nil != err {
			return nil, fmt.Errorf("%w: %s.%s default: %v", schema.ErrInvalidDefinition, p.owner.Label(), m.Name, err)
		}
		m.Default = v
	}
	return module, nil
}

func (b *bounds) value() constraint.Constraint {
	if b == nil {
		return constraint.Unconstrained()
	}
	c := constraint.Constraint{Extensible: b.Extensible}
	if b.Min != nil {
		c.Min, c.HasMin = *b.Min, true
	}
	if b.Max != nil {
		c.Max, c.HasMax = *b.Max, true
	}
	return c
}

func (l *loader) build(n *node) (*schema.Type, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing type", schema.ErrInvalidDefinition)
	}
	kind, ok := schema.ParseKind(n.Kind)
	if !ok {
		// A string type name stands for itself, e.g. {"kind": "IA5String"}.
		if _, ok := schema.ParseStringKind(n.Kind); !ok {
			return nil, fmt.Errorf("%w: unknown kind %q", schema.ErrInvalidDefinition, n.Kind)
		}
		kind, n.String = schema.KindCharacterString, n.Kind
	}

	switch kind {
	case schema.KindNull:
		return schema.Null(), nil
	case schema.KindBoolean:
		return schema.Boolean(), nil
	case schema.KindInteger:
		return schema.Integer(n.Range.value()), nil
	case schema.KindReal:
		return schema.Real(), nil
	case schema.KindObjectIdentifier:
		return schema.ObjectIdentifier(), nil
	case schema.KindEnumerated:
		return &schema.Type{
			Kind:               kind,
			Enumerals:          n.Items,
			ExtensionEnumerals: n.ExtensionItems,
			Extensible:         n.Extensible || len(n.ExtensionItems) > 0,
		}, nil
	case schema.KindBitString:
		return schema.BitString(n.Size.value()), nil
	case schema.KindOctetString:
		return schema.OctetString(n.Size.value()), nil
	case schema.KindCharacterString:
		sk, ok := schema.ParseStringKind(n.String)
		if !ok {
			return nil, fmt.Errorf("%w: unknown character string %q", schema.ErrInvalidDefinition, n.String)
		}
		t := schema.CharacterString(sk, n.Size.value())
		if n.From != "" {
			t.From(n.From)
		}
		return t, nil
	case schema.KindSequence:
		t := &schema.Type{Kind: kind, Extensible: n.Extensible}
		for i, m := range n.Members {
			mt, err := l.build(m.Type)
			if nil != err {
				return nil, fmt.Errorf("%s: %w", m.Name, err)
			}
			member := schema.Member{Name: m.Name, Type: mt, Optional: m.Optional, Extension: m.Extension}
			if len(m.Default) > 0 {
				raw, err := decodeRaw(m.Default)
				if nil != err {
					return nil, fmt.Errorf("%w: %s default: %v", schema.ErrInvalidDefinition, m.Name, err)
				}
				// Resolve needs to see the member as defaulted.
				member.Default = raw
				if raw == nil {
					member.Default = value.Null{}
				}
				l.defaults = append(l.defaults, pending{owner: t, index: i, raw: raw})
			}
			t.Members = append(t.Members, member)
		}
		return t, nil
	case schema.KindChoice:
		t := &schema.Type{Kind: kind, Extensible: n.Extensible}
		for _, a := range n.Alternatives {
			at, err := l.build(a.Type)
			if nil != err {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			t.Variants = append(t.Variants, schema.Variant{Name: a.Name, Type: at, Extension: a.Extension})
		}
		return t, nil
	case schema.KindSequenceOf:
		element, err := l.build(n.Element)
		if nil != err {
			return nil, fmt.Errorf("[]: %w", err)
		}
		return schema.SequenceOf(element, n.Size.value()), nil
	case schema.KindReference:
		return schema.Ref(n.Name), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", schema.ErrInvalidDefinition, n.Kind)
}

func decodeRaw(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); nil != err {
		return nil, err
	}
	return raw, nil
}
