package wire

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"math"
	"time"
)

// NULL sentinels for column values, which carry no per-value type byte
const (
	nullTinyInt   = math.MinInt8
	nullSmallInt  = math.MinInt16
	nullInteger   = math.MinInt32
	nullBigInt    = math.MinInt64
	nullTimestamp = math.MinInt64
	nullFloat     = -1.7e308
)

// --------------------------------------------------------------------------
// Typed values (procedure parameters): type byte + value
// --------------------------------------------------------------------------

// appendTypedValue writes the type byte of v followed by its encoding
func appendTypedValue(dst []byte, v any) ([]byte, error) {
	t := common.TypeOf(v)
	if t == common.TypeInvalid {
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
	dst = appendInt8(dst, int8(t))
	if t == common.TypeNull {
		return dst, nil
	}
	return appendValue(dst, t, v)
}

// readTypedValue reads a type byte followed by a value of that type
func readTypedValue(v *View) (any, error) {
	t, err := v.Int8()
	if err != nil {
		return nil, err
	}
	if common.ValueType(t) == common.TypeNull {
		return nil, nil
	}
	return readValue(v, common.ValueType(t))
}

// --------------------------------------------------------------------------
// Untyped values (table cells): the type comes from the column
// --------------------------------------------------------------------------

// appendValue writes v encoded as type t. A nil v writes the NULL sentinel.
func appendValue(dst []byte, t common.ValueType, v any) ([]byte, error) {
	if v == nil {
		return appendNull(dst, t)
	}
	switch t {
	case common.TypeTinyInt:
		if n, ok := v.(int8); ok {
			return appendInt8(dst, n), nil
		}
	case common.TypeSmallInt:
		if n, ok := v.(int16); ok {
			return appendInt16(dst, n), nil
		}
	case common.TypeInteger:
		if n, ok := v.(int32); ok {
			return appendInt32(dst, n), nil
		}
	case common.TypeBigInt:
		switch n := v.(type) {
		case int64:
			return appendInt64(dst, n), nil
		case int:
			return appendInt64(dst, int64(n)), nil
		}
	case common.TypeFloat:
		switch f := v.(type) {
		case float64:
			return appendInt64(dst, int64(math.Float64bits(f))), nil
		case float32:
			return appendInt64(dst, int64(math.Float64bits(float64(f)))), nil
		}
	case common.TypeString:
		if s, ok := v.(string); ok {
			return appendString(dst, s), nil
		}
	case common.TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return appendInt64(dst, ts.UnixMicro()), nil
		}
	case common.TypeVarBinary:
		if b, ok := v.([]byte); ok {
			return appendBytes(dst, b), nil
		}
	}
	return nil, fmt.Errorf("cannot encode %T as %s", v, t)
}

func appendNull(dst []byte, t common.ValueType) ([]byte, error) {
	switch t {
	case common.TypeTinyInt:
		return appendInt8(dst, nullTinyInt), nil
	case common.TypeSmallInt:
		return appendInt16(dst, nullSmallInt), nil
	case common.TypeInteger:
		return appendInt32(dst, nullInteger), nil
	case common.TypeBigInt:
		return appendInt64(dst, nullBigInt), nil
	case common.TypeFloat:
		return appendInt64(dst, int64(math.Float64bits(nullFloat))), nil
	case common.TypeString, common.TypeVarBinary:
		return appendInt32(dst, -1), nil
	case common.TypeTimestamp:
		return appendInt64(dst, nullTimestamp), nil
	default:
		return nil, fmt.Errorf("type %s has no NULL encoding", t)
	}
}

// readValue reads one value of type t, mapping NULL sentinels back to nil
func readValue(v *View, t common.ValueType) (any, error) {
	switch t {
	case common.TypeTinyInt:
		n, err := v.Int8()
		if err != nil || n == nullTinyInt {
			return nil, err
		}
		return n, nil
	case common.TypeSmallInt:
		n, err := v.Int16()
		if err != nil || n == nullSmallInt {
			return nil, err
		}
		return n, nil
	case common.TypeInteger:
		n, err := v.Int32()
		if err != nil || n == nullInteger {
			return nil, err
		}
		return n, nil
	case common.TypeBigInt:
		n, err := v.Int64()
		if err != nil || n == nullBigInt {
			return nil, err
		}
		return n, nil
	case common.TypeFloat:
		f, err := v.Float64()
		if err != nil || f <= nullFloat {
			return nil, err
		}
		return f, nil
	case common.TypeString:
		s, wasNull, err := v.ReadString()
		if err != nil || wasNull {
			return nil, err
		}
		return s, nil
	case common.TypeTimestamp:
		n, err := v.Int64()
		if err != nil || n == nullTimestamp {
			return nil, err
		}
		return time.UnixMicro(n).UTC(), nil
	case common.TypeVarBinary:
		b, err := v.ReadBytes()
		if err != nil || b == nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %d", common.ErrMalformedFrame, int8(t))
	}
}
