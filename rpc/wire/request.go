package wire

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

// Request is the server side view of an invocation frame
type Request struct {
	Version       int8
	CorrelationID int64
	Procedure     string
	Params        []any
}

// EncodeRequest writes a complete request frame:
//   - 4 bytes: body length (int32)
//   - 1 byte: protocol version
//   - 8 bytes: correlation id (int64)
//   - procedure name (int32 length + bytes)
//   - parameter set as produced by inv.AppendParams
//
// The invocation is validated first, so incomplete parameters fail with
// common.ErrIncompleteParameters before anything is encoded.
func EncodeRequest(version int8, correlationID int64, inv IInvocation) ([]byte, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	name := inv.ProcedureName()
	frame := beginFrame(1 + 8 + 4 + len(name) + 64)
	frame = appendInt8(frame, version)
	frame = appendInt64(frame, correlationID)
	frame = appendString(frame, name)

	frame, err := inv.AppendParams(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters of %s: %w", name, err)
	}
	return finishFrame(frame)
}

// DecodeRequest decodes a request frame body (without the length prefix)
func DecodeRequest(body []byte, version int8) (*Request, error) {
	v := NewView(body)
	req := &Request{}
	var err error

	if req.Version, err = v.Int8(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if req.Version != version {
		return nil, fmt.Errorf("%w: got %d, expected %d", common.ErrUnsupportedVersion, req.Version, version)
	}
	if req.CorrelationID, err = v.Int64(); err != nil {
		return nil, fmt.Errorf("correlation id: %w", err)
	}
	if req.Procedure, _, err = v.ReadString(); err != nil {
		return nil, fmt.Errorf("procedure name: %w", err)
	}
	if req.Params, err = readParams(v); err != nil {
		return nil, err
	}
	return req, nil
}
