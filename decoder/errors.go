package decoder

import "errors"

var (
	// ErrInvalidSize reports a read with a non-positive size, or an integer
	// read wider than 8 bytes.
	ErrInvalidSize = errors.New("invalid read size")

	// ErrOutOfBounds reports a read, skip, or peek that would pass the end of
	// the buffer.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrInvalidOffset reports a seek target outside [0, Size()].
	ErrInvalidOffset = errors.New("invalid offset")
)
