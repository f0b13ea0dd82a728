package base

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"net"
	"time"
)

// loginHandshaker implements transport.IHandshaker with the database login
// exchange: one login frame out, one login response frame back.
type loginHandshaker struct {
	version int8
	service string
}

// NewLoginHandshaker creates the default handshaker for the given protocol version
func NewLoginHandshaker(version int8) transport.IHandshaker {
	return &loginHandshaker{version: version, service: wire.ServiceDatabase}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IHandshaker)
// --------------------------------------------------------------------------

func (h *loginHandshaker) Login(conn net.Conn, creds transport.Credentials, timeout time.Duration) (*wire.LoginResponse, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set login deadline: %w", err)
		}
		defer conn.SetDeadline(time.Time{})
	}

	frame, err := wire.EncodeLoginRequest(h.version, &wire.LoginRequest{
		Service:      h.service,
		Username:     creds.Username,
		PasswordHash: wire.HashPassword(creds.Password),
	})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to send login: %w", err)
	}

	body, err := readFrame(conn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}
	resp, err := wire.DecodeLoginResponse(body, h.version)
	if err != nil {
		return nil, err
	}
	if resp.Code != wire.LoginOK {
		return nil, fmt.Errorf("%w: %s", common.ErrAuthenticationFailed, resp.Code)
	}
	return resp, nil
}

// noHandshake skips the login exchange
type noHandshake struct{}

// NoHandshake returns a handshaker for peers that expect requests right away
func NoHandshake() transport.IHandshaker {
	return noHandshake{}
}

func (noHandshake) Login(net.Conn, transport.Credentials, time.Duration) (*wire.LoginResponse, error) {
	return &wire.LoginResponse{Code: wire.LoginOK}, nil
}
