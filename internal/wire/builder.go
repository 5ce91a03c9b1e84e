package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Builder constructs little-endian frames. It is used for outgoing client
// commands and for assembling synthetic server frames in tests.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf.Reset()
}

// WriteU8 writes a single byte.
func (b *Builder) WriteU8(v uint8) *Builder {
	b.buf.WriteByte(v)
	return b
}

// WriteU16 writes a uint16 in little-endian order.
func (b *Builder) WriteU16(v uint16) *Builder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteU32 writes a uint32 in little-endian order.
func (b *Builder) WriteU32(v uint32) *Builder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteF32 writes a float32 in little-endian order.
func (b *Builder) WriteF32(v float32) *Builder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteF64 writes a float64 in little-endian order.
func (b *Builder) WriteF64(v float64) *Builder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteUnits writes s as UTF-16 code units without a terminator. Runes
// outside the Basic Multilingual Plane become surrogate pairs.
func (b *Builder) WriteUnits(s string) *Builder {
	for _, u := range utf16.Encode([]rune(s)) {
		b.WriteU16(u)
	}
	return b
}

// WriteString writes s as 16-bit code units followed by a zero unit.
func (b *Builder) WriteString(s string) *Builder {
	return b.WriteUnits(s).WriteU16(0)
}

// WriteBytes writes raw bytes.
func (b *Builder) WriteBytes(data []byte) *Builder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed frame bytes.
func (b *Builder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the frame being built.
func (b *Builder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current frame for debugging.
func (b *Builder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("Builder[%d bytes]: %x", len(data), data)
}
