package wire

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"math"
)

// View is a bounded read cursor over an immutable byte sequence. Reads never
// go past the limit of the view; a short read fails with common.ErrMalformedFrame.
type View struct {
	data  []byte
	pos   int
	limit int
}

// NewView creates a view over the whole of data
func NewView(data []byte) *View {
	return &View{data: data, limit: len(data)}
}

// Position returns the current cursor offset relative to the start of the view
func (v *View) Position() int {
	return v.pos
}

// Remaining returns the number of unread bytes before the limit
func (v *View) Remaining() int {
	return v.limit - v.pos
}

// need checks that n more bytes can be read
func (v *View) need(n int) error {
	if n < 0 || v.limit-v.pos < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, %d remaining", common.ErrMalformedFrame, n, v.pos, v.limit-v.pos)
	}
	return nil
}

// Skip advances the cursor by n bytes without interpreting them
func (v *View) Skip(n int) error {
	if err := v.need(n); err != nil {
		return err
	}
	v.pos += n
	return nil
}

// Window returns a new view over the next n bytes and advances this view
// past them. Reads on the returned view cannot cross its end, and this view
// keeps its own limit.
func (v *View) Window(n int) (*View, error) {
	if err := v.need(n); err != nil {
		return nil, err
	}
	w := &View{data: v.data[v.pos : v.pos+n], limit: n}
	v.pos += n
	return w, nil
}

// --------------------------------------------------------------------------
// Fixed width reads (big endian)
// --------------------------------------------------------------------------

func (v *View) Int8() (int8, error) {
	if err := v.need(1); err != nil {
		return 0, err
	}
	b := v.data[v.pos]
	v.pos++
	return int8(b), nil
}

func (v *View) Int16() (int16, error) {
	if err := v.need(2); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint16(v.data[v.pos:])
	v.pos += 2
	return int16(n), nil
}

func (v *View) Int32() (int32, error) {
	if err := v.need(4); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(v.data[v.pos:])
	v.pos += 4
	return int32(n), nil
}

func (v *View) Int64() (int64, error) {
	if err := v.need(8); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint64(v.data[v.pos:])
	v.pos += 8
	return int64(n), nil
}

func (v *View) Float64() (float64, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(n)), nil
}

// --------------------------------------------------------------------------
// Length prefixed reads
// --------------------------------------------------------------------------

// ReadBytes reads an int32 length followed by that many bytes. A length of -1
// encodes NULL and returns a nil slice. The returned slice is a copy.
func (v *View) ReadBytes() ([]byte, error) {
	n, err := v.Int32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d at offset %d", common.ErrMalformedFrame, n, v.pos-4)
	}
	if err := v.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, v.data[v.pos:v.pos+int(n)])
	v.pos += int(n)
	return out, nil
}

// ReadString reads a length prefixed string. NULL decodes as the empty string,
// wasNull tells the two apart.
func (v *View) ReadString() (s string, wasNull bool, err error) {
	b, err := v.ReadBytes()
	if err != nil {
		return "", false, err
	}
	if b == nil {
		return "", true, nil
	}
	return string(b), false, nil
}

// --------------------------------------------------------------------------
// Append helpers (big endian), the write side of View
// --------------------------------------------------------------------------

func appendInt8(dst []byte, n int8) []byte {
	return append(dst, byte(n))
}

func appendInt16(dst []byte, n int16) []byte {
	return binary.BigEndian.AppendUint16(dst, uint16(n))
}

func appendInt32(dst []byte, n int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(n))
}

func appendInt64(dst []byte, n int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(n))
}

func appendBytes(dst []byte, b []byte) []byte {
	if b == nil {
		return appendInt32(dst, -1)
	}
	dst = appendInt32(dst, int32(len(b)))
	return append(dst, b...)
}

func appendString(dst []byte, s string) []byte {
	dst = appendInt32(dst, int32(len(s)))
	return append(dst, s...)
}
