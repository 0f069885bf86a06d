// Package decoder implements a sequential, bounds-checked reader over a byte
// buffer. A Reader borrows the caller's buffer, tracks a cursor into it, and
// decodes integers, booleans, and raw byte spans in a byte order fixed at
// construction. Every failing operation leaves the cursor untouched, so a
// caller can recover and re-read with a different interpretation.
package decoder

import "fmt"

// ByteOrder selects how multi-byte integers are decoded.
type ByteOrder uint8

const (
	// BigEndian decodes the most significant byte first.
	BigEndian ByteOrder = iota
	// LittleEndian decodes the least significant byte first.
	LittleEndian
)

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// maxIntSize is the widest integer read supported; results are returned as
// uint64/int64, and wider requests fail with ErrInvalidSize rather than
// silently truncating.
const maxIntSize = 8

// Reader is a cursor over an immutable byte buffer. It never copies or
// mutates the buffer; reads copy out only the bytes they return. A Reader is
// not safe for concurrent mutation: callers sharing one across goroutines
// must serialize Read*/Skip/Seek themselves.
type Reader struct {
	buf   []byte
	off   int
	order ByteOrder
}

// New returns a Reader over buf positioned at offset 0. The buffer is
// borrowed for the lifetime of the Reader; it may be empty.
func New(buf []byte, order ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.off }

// Size returns the total length of the underlying buffer.
func (r *Reader) Size() int { return len(r.buf) }

// Remaining returns the number of bytes between the cursor and the end of
// the buffer.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// HasBytes reports whether n bytes are available at the current position.
func (r *Reader) HasBytes(n int) bool {
	return n >= 0 && r.off+n <= len(r.buf)
}

// take validates a sized read and consumes it. The offset only moves once
// every check has passed.
func (r *Reader) take(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidSize, size)
	}
	if !r.HasBytes(size) {
		return nil, fmt.Errorf("%w: cannot read %d bytes at offset %d (size %d)", ErrOutOfBounds, size, r.off, len(r.buf))
	}
	span := r.buf[r.off : r.off+size]
	r.off += size
	return span, nil
}

// ReadUint consumes size bytes and decodes them as an unsigned integer in
// the Reader's byte order. size must be between 1 and 8.
func (r *Reader) ReadUint(size int) (uint64, error) {
	if size > maxIntSize {
		return 0, fmt.Errorf("%w: integer reads support at most %d bytes, got %d", ErrInvalidSize, maxIntSize, size)
	}
	span, err := r.take(size)
	if err != nil {
		return 0, err
	}
	var v uint64
	if r.order == BigEndian {
		for _, b := range span {
			v = v<<8 | uint64(b)
		}
	} else {
		for i := len(span) - 1; i >= 0; i-- {
			v = v<<8 | uint64(span[i])
		}
	}
	return v, nil
}

// ReadInt consumes size bytes and decodes them as a two's-complement signed
// integer over 8×size bits, in the Reader's byte order. size must be between
// 1 and 8.
func (r *Reader) ReadInt(size int) (int64, error) {
	v, err := r.ReadUint(size)
	if err != nil {
		return 0, err
	}
	if size < maxIntSize && v&(1<<(8*size-1)) != 0 {
		// Sign-extend from the top bit of the decoded width.
		v |= ^uint64(0) << (8 * size)
	}
	return int64(v), nil
}

// ReadBool consumes a single byte: 0x00 is false, anything else is true.
func (r *Reader) ReadBool() (bool, error) {
	span, err := r.take(1)
	if err != nil {
		return false, err
	}
	return span[0] != 0, nil
}

// ReadBytes consumes size bytes and returns them as an owned copy.
func (r *Reader) ReadBytes(size int) ([]byte, error) {
	span, err := r.take(size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, span)
	return out, nil
}

// Skip advances the cursor by n bytes without decoding them. n = 0 is a
// no-op; use Seek to move backwards.
func (r *Reader) Skip(n int) error {
	if !r.HasBytes(n) {
		return fmt.Errorf("%w: cannot skip %d bytes at offset %d (size %d)", ErrOutOfBounds, n, r.off, len(r.buf))
	}
	r.off += n
	return nil
}

// Seek moves the cursor to an absolute position in [0, Size()], forwards or
// backwards.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return fmt.Errorf("%w: seek to %d (size %d)", ErrInvalidOffset, off, len(r.buf))
	}
	r.off = off
	return nil
}

// Peek returns an owned copy of the next n bytes without moving the cursor.
func (r *Reader) Peek(n int) ([]byte, error) {
	if !r.HasBytes(n) {
		return nil, fmt.Errorf("%w: cannot peek %d bytes at offset %d (size %d)", ErrOutOfBounds, n, r.off, len(r.buf))
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	return out, nil
}

func (r *Reader) String() string {
	return fmt.Sprintf("Reader(offset=%d, size=%d, remaining=%d)", r.off, len(r.buf), r.Remaining())
}
