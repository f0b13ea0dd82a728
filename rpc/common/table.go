package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Value Types
// --------------------------------------------------------------------------

// ValueType identifies the wire encoding of a parameter or column value.
type ValueType int8

const (
	TypeInvalid   ValueType = 0
	TypeNull      ValueType = 1
	TypeTinyInt   ValueType = 3  // int8
	TypeSmallInt  ValueType = 4  // int16
	TypeInteger   ValueType = 5  // int32
	TypeBigInt    ValueType = 6  // int64
	TypeFloat     ValueType = 8  // float64
	TypeString    ValueType = 9  // int32 length + utf-8 bytes
	TypeTimestamp ValueType = 11 // int64 microseconds since epoch
	TypeVarBinary ValueType = 25 // int32 length + bytes
)

// String returns the string representation of a ValueType.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeTinyInt:
		return "tinyint"
	case TypeSmallInt:
		return "smallint"
	case TypeInteger:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeTimestamp:
		return "timestamp"
	case TypeVarBinary:
		return "varbinary"
	default:
		return "invalid"
	}
}

// TypeOf returns the ValueType used to encode v, or TypeInvalid if v has no
// wire representation
func TypeOf(v any) ValueType {
	switch v.(type) {
	case nil:
		return TypeNull
	case int8:
		return TypeTinyInt
	case int16:
		return TypeSmallInt
	case int32:
		return TypeInteger
	case int64, int:
		return TypeBigInt
	case float64, float32:
		return TypeFloat
	case string:
		return TypeString
	case time.Time:
		return TypeTimestamp
	case []byte:
		return TypeVarBinary
	default:
		return TypeInvalid
	}
}

// --------------------------------------------------------------------------
// Table Structure
// --------------------------------------------------------------------------

// Column describes one column of a result table
type Column struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Table is one result table of a procedure invocation. Values in Rows use the
// Go types returned by TypeOf's inverse (nil for SQL NULL).
type Table struct {
	Status  int8     `json:"status"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Raw     []byte   `json:"-"` // set by decoders that keep the encoded form
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// AddRow appends a row. It fails if the row does not match the schema.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if vt := TypeOf(v); vt != t.Columns[i].Type {
			return fmt.Errorf("column %s: expected %s, got %s", t.Columns[i].Name, t.Columns[i].Type, vt)
		}
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// RowCount returns the number of rows
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// String returns a printable representation of the table
func (t *Table) String() string {
	var sb strings.Builder
	t.writeTo(&sb, "")
	return sb.String()
}

func (t *Table) writeTo(sb *strings.Builder, indent string) {
	if t.Columns == nil && t.Raw != nil {
		sb.WriteString(fmt.Sprintf("%s<%d raw bytes>\n", indent, len(t.Raw)))
		return
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = fmt.Sprintf("%s(%s)", c.Name, c.Type)
	}
	sb.WriteString(indent + strings.Join(names, " | ") + "\n")
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else if b, ok := v.([]byte); ok {
				cells[i] = fmt.Sprintf("%x", b)
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		sb.WriteString(indent + strings.Join(cells, " | ") + "\n")
	}
}
