package base

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"io"
	"net"
)

// writeFrame writes complete frames (length prefix included) to the connection
// with a single call where the connection supports vectored writes
func writeFrame(conn net.Conn, frames ...[]byte) error {
	b := net.Buffers(frames)
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame from the connection and returns its body.
// If buf is large enough it is used for the body, otherwise a new buffer is
// allocated.
func readFrame(conn net.Conn, buf []byte) ([]byte, error) {
	var header [wire.FrameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	length := int32(binary.BigEndian.Uint32(header[:]))
	if length < 1 || length > wire.MaxFrameSize {
		return nil, fmt.Errorf("%w: invalid frame length %d", common.ErrMalformedFrame, length)
	}

	if len(buf) < int(length) {
		buf = make([]byte, length)
	}
	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		return nil, err
	}
	return buf[:length], nil
}
