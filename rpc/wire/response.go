package wire

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

// Bit flags of the presence bitmask, indicating which optional fields follow
const (
	hasStatusString    byte = 1 << 5
	hasExtendedInfo    byte = 1 << 6
	hasAppStatusString byte = 1 << 7
)

// minTableLength is the smallest valid table encoding (its own header length)
const minTableLength = 4

// DecodeResponse decodes a response frame body (without the length prefix).
// The body layout is:
//   - 1 byte: protocol version
//   - 8 bytes: correlation id (int64)
//   - 1 byte: presence bitmask (bit 5 status string, bit 6 extended info,
//     bit 7 app status string)
//   - 1 byte: status code
//   - [status string: int32 length + bytes] if bit 5
//   - 1 byte: app status code
//   - [app status string: int32 length + bytes] if bit 7
//   - 4 bytes: cluster round trip time in ms (int32)
//   - [extended info: int32 length + bytes] if bit 6, skipped unread
//   - 2 bytes: table count (int16)
//   - per table: int32 length followed by that many bytes, decoded by tables
//
// Any read past the end of body fails with common.ErrMalformedFrame.
func DecodeResponse(body []byte, version int8, tables ITableDecoder) (*common.Response, error) {
	v := NewView(body)
	resp := common.NewResponse(0, 0)

	// Read version
	gotVersion, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if gotVersion != version {
		return nil, fmt.Errorf("%w: got %d, expected %d", common.ErrUnsupportedVersion, gotVersion, version)
	}

	// Read correlation id
	if resp.CorrelationID, err = v.Int64(); err != nil {
		return nil, fmt.Errorf("correlation id: %w", err)
	}

	// Read presence bitmask
	flags, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("presence bitmask: %w", err)
	}
	present := byte(flags)

	// Read status
	status, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	resp.Status = common.StatusCode(status)
	if !resp.Status.Valid() {
		return nil, fmt.Errorf("%w: status %d may not appear on the wire", common.ErrMalformedFrame, status)
	}

	// Read status string if present
	if present&hasStatusString != 0 {
		if resp.StatusString, _, err = v.ReadString(); err != nil {
			return nil, fmt.Errorf("status string: %w", err)
		}
	}

	// Read app status
	if resp.AppStatus, err = v.Int8(); err != nil {
		return nil, fmt.Errorf("app status: %w", err)
	}

	// Read app status string if present
	if present&hasAppStatusString != 0 {
		if resp.AppStatusString, _, err = v.ReadString(); err != nil {
			return nil, fmt.Errorf("app status string: %w", err)
		}
	}

	// Read round trip time
	if resp.ClusterRoundTrip, err = v.Int32(); err != nil {
		return nil, fmt.Errorf("round trip time: %w", err)
	}

	// Skip the extended info block if present, its contents are not defined
	if present&hasExtendedInfo != 0 {
		blockLen, err := v.Int32()
		if err != nil {
			return nil, fmt.Errorf("extended info length: %w", err)
		}
		if blockLen < 0 {
			return nil, fmt.Errorf("%w: negative extended info length %d", common.ErrMalformedFrame, blockLen)
		}
		if err := v.Skip(int(blockLen)); err != nil {
			return nil, fmt.Errorf("extended info: %w", err)
		}
	}

	// Read result tables
	count, err := v.Int16()
	if err != nil {
		return nil, fmt.Errorf("table count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative table count %d", common.ErrMalformedFrame, count)
	}
	if count > 0 {
		resp.Tables = make([]*common.Table, count)
	}
	for i := range resp.Tables {
		tableLen, err := v.Int32()
		if err != nil {
			return nil, fmt.Errorf("table %d length: %w", i, err)
		}
		if tableLen < minTableLength {
			return nil, fmt.Errorf("%w: table %d length %d is shorter than a table header", common.ErrMalformedFrame, i, tableLen)
		}
		window, err := v.Window(int(tableLen))
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
		if resp.Tables[i], err = tables.DecodeTable(window); err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
	}

	return resp, nil
}

// ResponseOptions carries fields that are only present on the wire
type ResponseOptions struct {
	// ExtendedInfo is written as the bit 6 block when not nil
	ExtendedInfo []byte
}

// EncodeResponse writes a complete response frame including the length
// prefix. Optional strings are only written (and their presence bit only
// set) when they are not empty.
func EncodeResponse(version int8, resp *common.Response, opts ResponseOptions) ([]byte, error) {
	if !resp.Status.Valid() {
		return nil, fmt.Errorf("status %s may not appear on the wire", resp.Status)
	}

	var present byte
	if resp.StatusString != "" {
		present |= hasStatusString
	}
	if resp.AppStatusString != "" {
		present |= hasAppStatusString
	}
	if opts.ExtendedInfo != nil {
		present |= hasExtendedInfo
	}

	frame := beginFrame(32 + len(resp.StatusString) + len(resp.AppStatusString) + len(opts.ExtendedInfo))
	frame = appendInt8(frame, version)
	frame = appendInt64(frame, resp.CorrelationID)
	frame = appendInt8(frame, int8(present))
	frame = appendInt8(frame, int8(resp.Status))
	if present&hasStatusString != 0 {
		frame = appendString(frame, resp.StatusString)
	}
	frame = appendInt8(frame, resp.AppStatus)
	if present&hasAppStatusString != 0 {
		frame = appendString(frame, resp.AppStatusString)
	}
	frame = appendInt32(frame, resp.ClusterRoundTrip)
	if present&hasExtendedInfo != 0 {
		frame = appendBytes(frame, opts.ExtendedInfo)
	}

	if len(resp.Tables) > 32767 {
		return nil, fmt.Errorf("too many result tables: %d", len(resp.Tables))
	}
	frame = appendInt16(frame, int16(len(resp.Tables)))
	for i, t := range resp.Tables {
		lenPos := len(frame)
		frame = appendInt32(frame, 0) // patched below
		var err error
		if frame, err = EncodeTable(frame, t); err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
		putInt32(frame[lenPos:], int32(len(frame)-lenPos-4))
	}

	return finishFrame(frame)
}
