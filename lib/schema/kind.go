package schema

import "strings"

// Kind identifies the ASN.1 type category of a Type. The set is closed: every
// encoding rule supplies exactly one codec per Kind.
//
//go:generate stringer -type=Kind -trimprefix=Kind
type Kind uint8

// Predefined [Kind] constants.
const (
	KindInvalid Kind = iota
	KindNull
	KindBoolean
	KindInteger
	KindEnumerated
	KindReal
	KindBitString
	KindOctetString
	KindCharacterString
	KindObjectIdentifier
	KindSequence
	KindChoice
	KindSequenceOf
	KindReference
)

// ParseKind returns the Kind whose String form equals s, ignoring case and
// spaces, so that both "SequenceOf" and "SEQUENCE OF" are accepted.
func ParseKind(s string) (Kind, bool) {
	s = strings.ReplaceAll(s, " ", "")
	for k := KindNull; k <= KindReference; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return KindInvalid, false
}

// StringKind selects a restricted character string type.
//
//go:generate stringer -type=StringKind
type StringKind uint8

// Predefined [StringKind] constants.
const (
	IA5String StringKind = iota
	VisibleString
	PrintableString
	NumericString
	UTF8String
	BMPString
	UniversalString
)

// ParseStringKind returns the StringKind whose String form equals s, ignoring
// case.
func ParseStringKind(s string) (StringKind, bool) {
	for k := IA5String; k <= UniversalString; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return IA5String, false
}
