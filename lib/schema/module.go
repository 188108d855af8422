package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUndefinedReference is returned when a reference names no definition.
	ErrUndefinedReference = errors.New("undefined type reference")

	// ErrRecursiveDefinition is returned for definitions whose recursion has
	// no optional escape, i.e. that admit no finite value.
	ErrRecursiveDefinition = errors.New("recursive type definition without escape")
)

// Module is a named collection of type definitions. References inside the
// definitions are bound by Resolve; after a successful Resolve the module
// and every Type in it must be treated as immutable.
type Module struct {
	Name  string
	types map[string]*Type
	order []string
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, types: make(map[string]*Type)}
}

// Define adds the definition name ::= t.
func (m *Module) Define(name string, t *Type) error {
	if name == "" || t == nil {
		return fmt.Errorf("%w: empty definition", ErrInvalidDefinition)
	}
	if _, ok := m.types[name]; ok {
		return fmt.Errorf("%w: %q defined twice", ErrInvalidDefinition, name)
	}
	if t.Name == "" && t.Kind != KindReference {
		t.Name = name
	}
	m.types[name] = t
	m.order = append(m.order, name)
	return nil
}

// Lookup returns the definition called name.
func (m *Module) Lookup(name string) (*Type, bool) {
	t, ok := m.types[name]
	return t, ok
}

// Names returns the defined names in definition order.
func (m *Module) Names() []string {
	return slices.Clone(m.order)
}

// Resolve validates every definition, binds every reference to its
// definition and rejects recursion that admits no finite value. It must be
// called once, before the module's types are used for encoding or decoding.
func (m *Module) Resolve() error {
	for _, name := range m.order {
		err := m.types[name].walk(func(t *Type) error {
			if err := t.validateNode(); err != nil {
				return err
			}
			switch t.Kind {
			case KindReference:
				target, ok := m.types[t.Name]
				if !ok {
					return fmt.Errorf("%w: %s", ErrUndefinedReference, t.Name)
				}
				t.target = target
			case KindCharacterString:
				t.alphabet = newAlphabet(t.String, t.Alphabet)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return m.checkRecursion()
}

// checkRecursion computes, as a fixed point, which definitions admit a
// finite value. Any definition left over is part of (or depends on) a cycle
// that every value would have to traverse.
func (m *Module) checkRecursion() error {
	finite := make(map[string]bool, len(m.order))
	for changed := true; changed; {
		changed = false
		for _, name := range m.order {
			if !finite[name] && m.finite(m.types[name], finite) {
				finite[name] = true
				changed = true
			}
		}
	}
	var cyclic []string
	for _, name := range m.order {
		if !finite[name] {
			cyclic = append(cyclic, name)
		}
	}
	if len(cyclic) > 0 {
		return fmt.Errorf("%w: %s", ErrRecursiveDefinition, strings.Join(cyclic, ", "))
	}
	return nil
}

// finite reports whether t admits a finite value, given the definitions
// already known to be finite.
func (m *Module) finite(t *Type, known map[string]bool) bool {
	switch t.Kind {
	case KindReference:
		return known[t.Name]
	case KindSequence:
		for _, member := range t.Members {
			if member.Optional || member.Default != nil || member.Extension {
				continue
			}
			if !m.finite(member.Type, known) {
				return false
			}
		}
		return true
	case KindChoice:
		for _, v := range t.Variants {
			if m.finite(v.Type, known) {
				return true
			}
		}
		return false
	case KindSequenceOf:
		if !t.Size.HasMin || t.Size.Min == 0 {
			return true
		}
		return m.finite(t.Element, known)
	default:
		return true
	}
}
