package wire

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

// ITableDecoder decodes one result table. The view passed in is bounded to
// exactly the declared table length, so a decoder cannot read into a
// sibling table.
type ITableDecoder interface {
	DecodeTable(v *View) (*common.Table, error)
}

// --------------------------------------------------------------------------
// Raw decoder
// --------------------------------------------------------------------------

// RawTableDecoder keeps the encoded table bytes without interpreting them
type RawTableDecoder struct{}

func (RawTableDecoder) DecodeTable(v *View) (*common.Table, error) {
	raw := make([]byte, v.Remaining())
	copy(raw, v.data[v.pos:v.limit])
	if err := v.Skip(len(raw)); err != nil {
		return nil, err
	}
	return &common.Table{Raw: raw}, nil
}

// --------------------------------------------------------------------------
// Schema decoder
// --------------------------------------------------------------------------

// SchemaTableDecoder decodes the table layout written by EncodeTable:
//   - 4 bytes: header length (int32), counting the bytes up to the row count
//   - 1 byte: table status
//   - 2 bytes: column count (int16)
//   - column count bytes: column types
//   - column count strings: column names (int32 length + bytes)
//   - 4 bytes: row count (int32)
//   - per row: 4 bytes row length (int32) followed by the column values
type SchemaTableDecoder struct{}

func (SchemaTableDecoder) DecodeTable(v *View) (*common.Table, error) {
	headerLen, err := v.Int32()
	if err != nil {
		return nil, fmt.Errorf("table header length: %w", err)
	}
	header, err := v.Window(int(headerLen))
	if err != nil {
		return nil, fmt.Errorf("table header: %w", err)
	}

	t := &common.Table{}
	if t.Status, err = header.Int8(); err != nil {
		return nil, fmt.Errorf("table status: %w", err)
	}
	count, err := header.Int16()
	if err != nil {
		return nil, fmt.Errorf("column count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative column count %d", common.ErrMalformedFrame, count)
	}

	if count > 0 {
		t.Columns = make([]common.Column, count)
	}
	for i := range t.Columns {
		typ, err := header.Int8()
		if err != nil {
			return nil, fmt.Errorf("column %d type: %w", i, err)
		}
		t.Columns[i].Type = common.ValueType(typ)
	}
	for i := range t.Columns {
		if t.Columns[i].Name, _, err = header.ReadString(); err != nil {
			return nil, fmt.Errorf("column %d name: %w", i, err)
		}
	}

	rowCount, err := v.Int32()
	if err != nil {
		return nil, fmt.Errorf("row count: %w", err)
	}
	if rowCount < 0 {
		return nil, fmt.Errorf("%w: negative row count %d", common.ErrMalformedFrame, rowCount)
	}

	for r := 0; r < int(rowCount); r++ {
		rowLen, err := v.Int32()
		if err != nil {
			return nil, fmt.Errorf("row %d length: %w", r, err)
		}
		rowView, err := v.Window(int(rowLen))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		row := make([]any, len(t.Columns))
		for c, col := range t.Columns {
			if row[c], err = readValue(rowView, col.Type); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, col.Name, err)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// EncodeTable appends t in the layout read by SchemaTableDecoder. The
// int32 table length that precedes every table in a response is not written.
func EncodeTable(dst []byte, t *common.Table) ([]byte, error) {
	if t.Raw != nil && t.Columns == nil {
		return append(dst, t.Raw...), nil
	}

	headerStart := len(dst)
	dst = appendInt32(dst, 0) // patched below
	dst = appendInt8(dst, t.Status)
	dst = appendInt16(dst, int16(len(t.Columns)))
	for _, c := range t.Columns {
		dst = appendInt8(dst, int8(c.Type))
	}
	for _, c := range t.Columns {
		dst = appendString(dst, c.Name)
	}
	putInt32(dst[headerStart:], int32(len(dst)-headerStart-4))

	dst = appendInt32(dst, int32(len(t.Rows)))
	for r, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d values, table has %d columns", r, len(row), len(t.Columns))
		}
		rowStart := len(dst)
		dst = appendInt32(dst, 0) // patched below
		for c, val := range row {
			var err error
			if dst, err = appendValue(dst, t.Columns[c].Type, val); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, t.Columns[c].Name, err)
			}
		}
		putInt32(dst[rowStart:], int32(len(dst)-rowStart-4))
	}
	return dst, nil
}

func putInt32(dst []byte, n int32) {
	binary.BigEndian.PutUint32(dst, uint32(n))
}
