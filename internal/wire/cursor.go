// Package wire implements the low-level little-endian readers and writers
// shared by every frame decoder and command encoder. Reads are bounds-checked
// against the frame length; a short frame surfaces as ErrOutOfBounds.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned when a read would run past the end of the frame.
var ErrOutOfBounds = errors.New("read out of bounds")

// Cursor reads fixed-width values from an immutable frame buffer
// while tracking an explicit offset.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor creates a cursor over buf positioned at offset.
func NewCursor(buf []byte, offset int) *Cursor {
	return &Cursor{buf: buf, off: offset}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int {
	return c.off
}

// Len returns the length of the underlying frame.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// take returns the next n bytes and advances the offset.
// The offset is left untouched when the read does not fit.
func (c *Cursor) take(n int) ([]byte, error) {
	if c.off < 0 || n > len(c.buf)-c.off {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, frame is %d bytes",
			ErrOutOfBounds, n, c.off, len(c.buf))
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (c *Cursor) ReadF32() (float32, error) {
	v, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadF64 reads a little-endian IEEE-754 float64.
func (c *Cursor) ReadF64() (float64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadU8 reads one byte from buf at offset and returns the value with the
// advanced offset.
func ReadU8(buf []byte, offset int) (uint8, int, error) {
	c := NewCursor(buf, offset)
	v, err := c.ReadU8()
	return v, c.off, err
}

// ReadU16 reads a little-endian uint16 from buf at offset.
func ReadU16(buf []byte, offset int) (uint16, int, error) {
	c := NewCursor(buf, offset)
	v, err := c.ReadU16()
	return v, c.off, err
}

// ReadU32 reads a little-endian uint32 from buf at offset.
func ReadU32(buf []byte, offset int) (uint32, int, error) {
	c := NewCursor(buf, offset)
	v, err := c.ReadU32()
	return v, c.off, err
}

// ReadF32 reads a little-endian float32 from buf at offset.
func ReadF32(buf []byte, offset int) (float32, int, error) {
	c := NewCursor(buf, offset)
	v, err := c.ReadF32()
	return v, c.off, err
}

// ReadF64 reads a little-endian float64 from buf at offset.
func ReadF64(buf []byte, offset int) (float64, int, error) {
	c := NewCursor(buf, offset)
	v, err := c.ReadF64()
	return v, c.off, err
}
