// Package wire implements the binary wire codec shared by the Bridge and the
// sensor runtime: a 4-byte-length-prefixed, single-byte-tagged binary format
// independent of host word size.
package wire

import (
	"encoding/binary"
	"fmt"
)

// LengthPrefixSize is the fixed width used whenever a variable-length field's
// size is persisted into a buffer, regardless of the host's native int size.
const LengthPrefixSize = 4

// Persistable is implemented by every wire type. NeededSize reports the exact
// number of bytes ToBytes will write; each type's <Type>FromBytes function
// is the corresponding constructor.
type Persistable interface {
	NeededSize() int
	ToBytes(buf []byte) (int, error)
}

// cursor is a sequential byte-range writer/reader, advancing strictly
// forward through a buffer one field at a time.
type cursor struct {
	start, end int
}

func newCursor(firstLen int) cursor {
	return cursor{start: 0, end: firstLen}
}

func (c *cursor) advance(nextLen int) {
	c.start = c.end
	c.end = c.end + nextLen
}

func (c cursor) slice(buf []byte) ([]byte, error) {
	if c.end > len(buf) {
		return nil, fmt.Errorf("wire: buffer too small: need %d bytes, have %d", c.end, len(buf))
	}
	return buf[c.start:c.end], nil
}

// putString writes a length-prefixed UTF-8 string at the cursor's current
// position and advances it.
func putString(c *cursor, s string, buf []byte) error {
	c.advance(LengthPrefixSize)
	lenSlice, err := c.slice(buf)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(lenSlice, uint32(len(s)))

	c.advance(len(s))
	strSlice, err := c.slice(buf)
	if err != nil {
		return err
	}
	copy(strSlice, s)
	return nil
}

// getString reads a length-prefixed UTF-8 string at the cursor's current
// position and advances it.
func getString(c *cursor, buf []byte) (string, error) {
	c.advance(LengthPrefixSize)
	lenSlice, err := c.slice(buf)
	if err != nil {
		return "", err
	}
	n := int(binary.LittleEndian.Uint32(lenSlice))

	c.advance(n)
	strSlice, err := c.slice(buf)
	if err != nil {
		return "", err
	}
	return string(strSlice), nil
}

// StringSize reports the number of bytes a length-prefixed string occupies.
func StringSize(s string) int {
	return len(s) + LengthPrefixSize
}

// putBytes writes a length-prefixed byte slice and advances the cursor.
func putBytes(c *cursor, b []byte, buf []byte) error {
	c.advance(LengthPrefixSize)
	lenSlice, err := c.slice(buf)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(lenSlice, uint32(len(b)))

	c.advance(len(b))
	dataSlice, err := c.slice(buf)
	if err != nil {
		return err
	}
	copy(dataSlice, b)
	return nil
}

func getBytes(c *cursor, buf []byte) ([]byte, error) {
	c.advance(LengthPrefixSize)
	lenSlice, err := c.slice(buf)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenSlice))

	c.advance(n)
	dataSlice, err := c.slice(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, dataSlice)
	return out, nil
}

// BytesSize reports the number of bytes a length-prefixed byte slice occupies.
func BytesSize(b []byte) int {
	return len(b) + LengthPrefixSize
}

func putUint32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

func getUint32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }
