package wire

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

const (
	// FrameHeaderSize is the size of the length prefix in front of every frame
	FrameHeaderSize = 4

	// MaxFrameSize is the largest frame body accepted from the wire
	MaxFrameSize = 50 * 1024 * 1024
)

// SplitFrame extracts the first complete frame from buf. The frame format is:
//   - 4 bytes: body length (int32, big endian)
//   - N bytes: body
//
// It returns the body (aliasing buf) and the total number of bytes the frame
// occupies. If buf does not yet hold a complete frame, body is nil and n is 0.
// A length prefix that can never describe a valid frame fails with
// common.ErrMalformedFrame.
func SplitFrame(buf []byte) (body []byte, n int, err error) {
	if len(buf) < FrameHeaderSize {
		return nil, 0, nil
	}

	length := int32(binary.BigEndian.Uint32(buf[:FrameHeaderSize]))
	if length < 1 || length > MaxFrameSize {
		return nil, 0, fmt.Errorf("%w: invalid frame length %d", common.ErrMalformedFrame, length)
	}

	total := FrameHeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	return buf[FrameHeaderSize:total], total, nil
}

// beginFrame reserves the length prefix of a new frame
func beginFrame(sizeHint int) []byte {
	return make([]byte, FrameHeaderSize, FrameHeaderSize+sizeHint)
}

// finishFrame writes the body length into the reserved prefix
func finishFrame(frame []byte) ([]byte, error) {
	length := len(frame) - FrameHeaderSize
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame body of %d bytes exceeds the maximum of %d", length, MaxFrameSize)
	}
	binary.BigEndian.PutUint32(frame[:FrameHeaderSize], uint32(length))
	return frame, nil
}

// Frame wraps an already encoded body in a length prefix
func Frame(body []byte) ([]byte, error) {
	frame := beginFrame(len(body))
	frame = append(frame, body...)
	return finishFrame(frame)
}
