// Package codec defines the boundary between callers and encoding rules.
//
// An encoding rule turns a value and its schema.Type into bytes and back.
// The type definition tree is rule independent, so swapping a Rule never
// changes the definitions or the call sites that use them. Rules never
// enforce that their input is fully consumed; that is left to the top-level
// caller through Unmarshal.
package codec

import (
	"fmt"

	"github.com/thebagchi/uper-go/lib/schema"
)

// Rule is implemented once per encoding rule.
type Rule interface {
	// Encode returns the complete encoding of v as an instance of t,
	// padded to an octet boundary.
	Encode(v any, t *schema.Type) ([]byte, error)

	// Decode decodes one value of type t from the start of data and reports
	// the number of bits it consumed. Data beyond those bits is ignored.
	Decode(data []byte, t *schema.Type) (any, uint64, error)
}

// Marshal encodes v as an instance of t using rule r.
func Marshal(r Rule, v any, t *schema.Type) ([]byte, error) {
	return r.Encode(v, t)
}

// Unmarshal decodes data as exactly one value of type t using rule r. It
// fails with ErrTrailingData if data holds octets beyond the final one
// touched by the decoded value, or if the padding bits of that octet are not
// zero. A value that consumed no bits occupies a single zero octet.
func Unmarshal(r Rule, data []byte, t *schema.Type) (any, error) {
	v, consumed, err := r.Decode(data, t)
	if err != nil {
		return nil, err
	}
	if err := CheckTrailing(data, consumed); err != nil {
		return nil, &Error{Op: "decode", Path: t.Label(), BitOffset: consumed, Err: err}
	}
	return v, nil
}

// CheckTrailing reports ErrTrailingData unless the first consumed bits of
// data, padded with zero bits to an octet boundary, make up all of data.
func CheckTrailing(data []byte, consumed uint64) error {
	used := max((consumed+7)/8, 1)
	if uint64(len(data)) > used {
		return fmt.Errorf("%w: %d octets after the value", ErrTrailingData, uint64(len(data))-used)
	}
	if uint64(len(data)) < used {
		return nil
	}
	if mask := byte(0xFF >> (consumed % 8)); consumed%8 != 0 || consumed == 0 {
		if data[used-1]&mask != 0 {
			return fmt.Errorf("%w: non-zero padding bits", ErrTrailingData)
		}
	}
	return nil
}
