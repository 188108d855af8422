package codec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/thebagchi/uper-go/lib/schema"
)

// fixed is a Rule that reports a fixed number of consumed bits.
type fixed struct {
	consumed uint64
	err      error
}

func (f fixed) Encode(v any, t *schema.Type) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0x80}, nil
}

func (f fixed) Decode(data []byte, t *schema.Type) (any, uint64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return true, f.consumed, nil
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		consumed uint64
		trailing bool
	}{
		{"EXACT_OCTET", []byte{0xAB}, 8, false},
		{"PADDED", []byte{0x80}, 5, false},
		{"EMPTY_VALUE", []byte{0x00}, 0, false},
		{"EMPTY_INPUT", nil, 0, false},
		{"EXTRA_OCTET", []byte{0x80, 0x00}, 5, true},
		{"DIRTY_PADDING", []byte{0x84}, 5, true},
		{"DIRTY_EMPTY", []byte{0x01}, 0, true},
		{"TWO_EXTRA", []byte{0x00, 0x00, 0x00}, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Unmarshal(fixed{consumed: tc.consumed}, tc.data, schema.Boolean())
			if tc.trailing {
				if !errors.Is(err, ErrTrailingData) {
					t.Fatalf("Unmarshal() error = %v, want ErrTrailingData", err)
				}
				var e *Error
				if !errors.As(err, &e) || e.BitOffset != tc.consumed {
					t.Errorf("Unmarshal() error = %#v, want *Error at bit %d", err, tc.consumed)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if v != true {
				t.Errorf("Unmarshal() = %v, want true", v)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(fixed{}, true, schema.Boolean())
	if err != nil || len(data) != 1 || data[0] != 0x80 {
		t.Errorf("Marshal() = %x, %v", data, err)
	}
	if _, err := Marshal(fixed{err: ErrCapacity}, true, schema.Boolean()); !errors.Is(err, ErrCapacity) {
		t.Errorf("Marshal() error = %v, want ErrCapacity", err)
	}
	if _, err := Unmarshal(fixed{err: ErrUnexpectedEndOfInput}, nil, schema.Boolean()); !errors.Is(err, ErrUnexpectedEndOfInput) {
		t.Errorf("Unmarshal() error = %v, want ErrUnexpectedEndOfInput", err)
	}
}

func TestError(t *testing.T) {
	err := &Error{
		Op:        "encode",
		Path:      "Message.id",
		BitOffset: 12,
		Err:       fmt.Errorf("%w: 16 outside (0..15)", ErrConstraintViolation),
	}
	if want := "uper: encode Message.id at bit 12: constraint violation: 16 outside (0..15)"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("errors.Is(ErrConstraintViolation) = false")
	}
	top := &Error{Op: "decode", Err: ErrMalformedSequence}
	if want := "uper: decode at bit 0: malformed sequence"; top.Error() != want {
		t.Errorf("Error() = %q, want %q", top.Error(), want)
	}
}
