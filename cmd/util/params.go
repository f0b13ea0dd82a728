package util

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseParam converts a command line argument into a procedure parameter.
//
// An explicit type is given as TYPE:VALUE with TYPE one of tinyint,
// smallint, int, bigint, float, string, timestamp (RFC 3339 or
// microseconds) and varbinary (hex). Without a type, integers become bigint,
// decimals become float, "null" becomes NULL and everything else a string.
func ParseParam(arg string) (any, error) {
	typ, value, typed := strings.Cut(arg, ":")
	if !typed || !isTypeName(typ) {
		return inferParam(arg), nil
	}

	switch typ {
	case "tinyint":
		n, err := strconv.ParseInt(value, 10, 8)
		return int8(n), wrapParseErr(arg, err)
	case "smallint":
		n, err := strconv.ParseInt(value, 10, 16)
		return int16(n), wrapParseErr(arg, err)
	case "int":
		n, err := strconv.ParseInt(value, 10, 32)
		return int32(n), wrapParseErr(arg, err)
	case "bigint":
		n, err := strconv.ParseInt(value, 10, 64)
		return n, wrapParseErr(arg, err)
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		return f, wrapParseErr(arg, err)
	case "string":
		return value, nil
	case "timestamp":
		if us, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.UnixMicro(us).UTC(), nil
		}
		ts, err := time.Parse(time.RFC3339Nano, value)
		return ts, wrapParseErr(arg, err)
	default: // varbinary
		b, err := hex.DecodeString(value)
		return b, wrapParseErr(arg, err)
	}
}

// ParseParams converts every argument with ParseParam
func ParseParams(args []string) ([]any, error) {
	params := make([]any, len(args))
	for i, arg := range args {
		p, err := ParseParam(arg)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		params[i] = p
	}
	return params, nil
}

func isTypeName(s string) bool {
	switch s {
	case "tinyint", "smallint", "int", "bigint", "float", "string", "timestamp", "varbinary":
		return true
	default:
		return false
	}
}

func inferParam(arg string) any {
	if arg == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	return arg
}

func wrapParseErr(arg string, err error) error {
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", arg, err)
	}
	return nil
}
