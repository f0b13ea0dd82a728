package wire

import (
	"crypto/sha1"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

// ServiceDatabase is the service name sent by database clients
const ServiceDatabase = "database"

// LoginCode is the result of a login handshake
type LoginCode int8

const (
	LoginOK                 LoginCode = 0
	LoginTooManyConnections LoginCode = 1
	LoginTimeout            LoginCode = 2
	LoginRejected           LoginCode = 3
)

// String returns the string representation of a LoginCode
func (c LoginCode) String() string {
	switch c {
	case LoginOK:
		return "ok"
	case LoginTooManyConnections:
		return "too many connections"
	case LoginTimeout:
		return "timeout"
	case LoginRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int8(c))
	}
}

// LoginRequest is the first frame sent on a new connection
type LoginRequest struct {
	Service      string
	Username     string
	PasswordHash []byte
}

// LoginResponse is the server answer to a LoginRequest
type LoginResponse struct {
	Code         LoginCode
	HostID       int32
	ConnectionID int64
	Build        string
}

// HashPassword returns the digest sent in place of the password
func HashPassword(password string) []byte {
	sum := sha1.Sum([]byte(password))
	return sum[:]
}

// EncodeLoginRequest writes a complete login frame:
//   - 1 byte: protocol version
//   - service, username (int32 length + bytes each)
//   - password hash (int32 length + bytes)
func EncodeLoginRequest(version int8, req *LoginRequest) ([]byte, error) {
	frame := beginFrame(1 + 12 + len(req.Service) + len(req.Username) + len(req.PasswordHash))
	frame = appendInt8(frame, version)
	frame = appendString(frame, req.Service)
	frame = appendString(frame, req.Username)
	frame = appendBytes(frame, req.PasswordHash)
	return finishFrame(frame)
}

// DecodeLoginRequest decodes a login frame body
func DecodeLoginRequest(body []byte, version int8) (*LoginRequest, error) {
	v := NewView(body)
	gotVersion, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if gotVersion != version {
		return nil, fmt.Errorf("%w: got %d, expected %d", common.ErrUnsupportedVersion, gotVersion, version)
	}

	req := &LoginRequest{}
	if req.Service, _, err = v.ReadString(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if req.Username, _, err = v.ReadString(); err != nil {
		return nil, fmt.Errorf("username: %w", err)
	}
	if req.PasswordHash, err = v.ReadBytes(); err != nil {
		return nil, fmt.Errorf("password hash: %w", err)
	}
	return req, nil
}

// EncodeLoginResponse writes a complete login response frame:
//   - 1 byte: protocol version
//   - 1 byte: result code
//   - 4 bytes: host id (int32)
//   - 8 bytes: connection id (int64)
//   - build string (int32 length + bytes)
func EncodeLoginResponse(version int8, resp *LoginResponse) ([]byte, error) {
	frame := beginFrame(1 + 1 + 4 + 8 + 4 + len(resp.Build))
	frame = appendInt8(frame, version)
	frame = appendInt8(frame, int8(resp.Code))
	frame = appendInt32(frame, resp.HostID)
	frame = appendInt64(frame, resp.ConnectionID)
	frame = appendString(frame, resp.Build)
	return finishFrame(frame)
}

// DecodeLoginResponse decodes a login response frame body. A rejected login
// is not an error at this level; the caller inspects Code.
func DecodeLoginResponse(body []byte, version int8) (*LoginResponse, error) {
	v := NewView(body)
	gotVersion, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if gotVersion != version {
		return nil, fmt.Errorf("%w: got %d, expected %d", common.ErrUnsupportedVersion, gotVersion, version)
	}

	resp := &LoginResponse{}
	code, err := v.Int8()
	if err != nil {
		return nil, fmt.Errorf("result code: %w", err)
	}
	resp.Code = LoginCode(code)
	if resp.HostID, err = v.Int32(); err != nil {
		return nil, fmt.Errorf("host id: %w", err)
	}
	if resp.ConnectionID, err = v.Int64(); err != nil {
		return nil, fmt.Errorf("connection id: %w", err)
	}
	if resp.Build, _, err = v.ReadString(); err != nil {
		return nil, fmt.Errorf("build string: %w", err)
	}
	return resp, nil
}
