package codec

import (
	"errors"
	"strconv"

	"github.com/thebagchi/uper-go/lib/bitbuffer"
)

// Errors reported by encoding rules. Every failure of Encode or Decode wraps
// exactly one of these, so callers can classify it with errors.Is. All of
// them are deterministic: retrying with the same input fails the same way.
var (
	// ErrConstraintViolation is returned when a value lies outside a
	// non-extensible constraint at encode time.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUnexpectedEndOfInput is returned when a decode runs out of bits.
	ErrUnexpectedEndOfInput = bitbuffer.ErrUnexpectedEnd

	// ErrMalformedSequence is returned when decoded presence information does
	// not agree with the type definition.
	ErrMalformedSequence = errors.New("malformed sequence")

	// ErrUnknownChoiceVariant is returned when a decoded choice or enumeration
	// index addresses no known alternative.
	ErrUnknownChoiceVariant = errors.New("unknown choice variant")

	// ErrTrailingData is returned by Unmarshal when input is left over after
	// the top-level value.
	ErrTrailingData = errors.New("trailing data")

	// ErrCapacity is returned when the output would exceed the configured
	// maximum size.
	ErrCapacity = bitbuffer.ErrCapacity

	// ErrInvalidValue is returned when a value does not have the Go
	// representation expected for its type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnsupported is returned for encodings the rule was configured not to
	// produce or accept.
	ErrUnsupported = errors.New("unsupported encoding")

	// ErrDepthExceeded is returned when nesting exceeds the configured limit.
	ErrDepthExceeded = errors.New("maximum nesting depth exceeded")

	// ErrUnresolvedReference is returned for type references that were never
	// bound to a definition.
	ErrUnresolvedReference = errors.New("unresolved type reference")
)

// Error records a failed encode or decode together with where it happened.
type Error struct {
	Op string // "encode" or "decode"

	// Path locates the failing component, e.g. "Message.items[3].id",
	// starting from the label of the top-level type.
	Path string

	// BitOffset is the cursor position when the failure was detected: the
	// number of bits written (encode) or consumed (decode).
	BitOffset uint64

	Err error // underlying error
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Error() string {
	b := []byte("uper: ")
	b = append(b, e.Op...)
	if e.Path != "" {
		b = append(b, ' ')
		b = append(b, e.Path...)
	}
	b = append(b, " at bit "...)
	b = strconv.AppendUint(b, e.BitOffset, 10)
	if e.Err != nil {
		b = append(b, ": "...)
		b = append(b, e.Err.Error()...)
	}
	return string(b)
}
