package schema

import (
	"fmt"
	"math/bits"
	"slices"
)

// printable is the character set of PrintableString in canonical order.
const printable = " '()+,-./0123456789:=?ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// numeric is the character set of NumericString in canonical order.
const numeric = " 0123456789"

// Alphabet is the effective permitted alphabet of a character string type:
// the characters it admits and the number of bits b each one occupies. A
// character is encoded by its code when the largest code fits in b bits and
// by its index in canonical order otherwise.
type Alphabet struct {
	kind    StringKind
	source  string
	chars   []rune // sorted; nil for a contiguous range
	lo, hi  rune
	bits    int
	indexed bool
	err     error
}

func newAlphabet(kind StringKind, from string) *Alphabet {
	a := &Alphabet{kind: kind, source: from}
	switch kind {
	case IA5String:
		a.lo, a.hi = 0, 0x7F
	case VisibleString:
		a.lo, a.hi = 0x20, 0x7E
	case PrintableString:
		a.chars = []rune(printable)
	case NumericString:
		a.chars = []rune(numeric)
	case BMPString:
		a.lo, a.hi = 0, 0xFFFF
	case UniversalString:
		a.lo, a.hi = 0, 0x7FFFFFFF
	case UTF8String:
		if from != "" {
			a.err = fmt.Errorf("permitted alphabet on %s is not PER-visible", kind)
		}
		return a
	default:
		a.err = fmt.Errorf("unknown character string kind %d", kind)
		return a
	}

	if from != "" {
		chars := []rune(from)
		slices.Sort(chars)
		chars = slices.Compact(chars)
		for _, r := range chars {
			if !a.contains(r) {
				a.err = fmt.Errorf("character %q outside the %s character set", r, kind)
				return a
			}
		}
		a.chars = chars
	}

	var count, largest uint64
	if a.chars != nil {
		count, largest = uint64(len(a.chars)), uint64(a.chars[len(a.chars)-1])
	} else {
		count, largest = uint64(a.hi-a.lo)+1, uint64(a.hi)
	}
	a.bits = bits.Len64(count - 1)
	a.indexed = largest > (uint64(1)<<a.bits)-1
	if kind == UniversalString && from == "" {
		// UCS-4 occupies the full 32-bit space
		a.bits, a.indexed = 32, false
	}
	return a
}

// KnownMultiplier reports whether every character occupies a fixed number of
// bits.
func (a *Alphabet) KnownMultiplier() bool {
	return a.kind != UTF8String && a.err == nil
}

// Bits returns the number of bits used per character.
func (a *Alphabet) Bits() int {
	return a.bits
}

// Size returns the number of characters in the alphabet.
func (a *Alphabet) Size() int {
	if a.chars != nil {
		return len(a.chars)
	}
	return int(a.hi-a.lo) + 1
}

func (a *Alphabet) contains(r rune) bool {
	if a.chars != nil {
		_, ok := slices.BinarySearch(a.chars, r)
		return ok
	}
	return r >= a.lo && r <= a.hi
}

// Encode returns the field value for r, or false if r is not permitted.
func (a *Alphabet) Encode(r rune) (uint64, bool) {
	if !a.contains(r) {
		return 0, false
	}
	if !a.indexed {
		return uint64(r), true
	}
	if a.chars == nil {
		return uint64(r - a.lo), true
	}
	index, _ := slices.BinarySearch(a.chars, r)
	return uint64(index), true
}

// Decode maps a field value back to its character, or false if the value
// does not denote a permitted character.
func (a *Alphabet) Decode(v uint64) (rune, bool) {
	if a.indexed {
		if a.chars == nil {
			if v > uint64(a.hi-a.lo) {
				return 0, false
			}
			return a.lo + rune(v), true
		}
		if v >= uint64(len(a.chars)) {
			return 0, false
		}
		return a.chars[v], true
	}
	if v > 0x7FFFFFFF {
		return 0, false
	}
	r := rune(v)
	if !a.contains(r) {
		return 0, false
	}
	return r, true
}
