package wire

import "unicode/utf16"

// ReadString reads a null-terminated run of 16-bit code units and decodes
// them as UTF-16, joining surrogate pairs. The terminator is consumed; an
// unterminated string fails with ErrOutOfBounds at the end of the frame.
func (c *Cursor) ReadString() (string, error) {
	var units []uint16
	for {
		unit, err := c.ReadU16()
		if err != nil {
			return "", err
		}
		if unit == 0 {
			return string(utf16.Decode(units)), nil
		}
		units = append(units, unit)
	}
}

// ReadString decodes a null-terminated string from buf at offset and returns
// the text with the offset just past the terminator.
func ReadString(buf []byte, offset int) (string, int, error) {
	c := NewCursor(buf, offset)
	s, err := c.ReadString()
	if err != nil {
		return "", offset, err
	}
	return s, c.off, nil
}
