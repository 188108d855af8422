package per

const (
	// MAX_CONSTRAINED_LENGTH bounds the upper bound of a length determinant
	// that is encoded as a constrained whole number. Lengths whose "ub" is at
	// or above it use the general (unconstrained) length determinant.
	// ITU-T X.691 Section 11.9.3.3 / 11.9.4.1
	MAX_CONSTRAINED_LENGTH = 65536 // 64K

	// FRAGMENT_SIZE is the unit of fragmented lengths: a fragment carries
	// 1 to 4 multiples of it, after which another length determinant follows.
	// ITU-T X.691 Section 11.9.3.8
	FRAGMENT_SIZE = 16384 // 16K

	// MAX_NORMALLY_SMALL is the largest value of the 6-bit short form of a
	// normally small non-negative whole number.
	// ITU-T X.691 Section 11.6.1
	MAX_NORMALLY_SMALL = 63
)

// Config tunes the primitive layer.
type Config struct {
	// MaxBytes bounds the encoder output; a write that would exceed it fails
	// with codec.ErrCapacity. 0 means unbounded. Decoders ignore it.
	MaxBytes int

	// NoFragmentation makes lengths of FRAGMENT_SIZE units or more fail with
	// codec.ErrUnsupported, on both encode and decode, instead of using the
	// fragmented form.
	NoFragmentation bool
}
