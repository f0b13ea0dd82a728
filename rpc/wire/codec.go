package wire

import (
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("wire")

// IWireCodec is the client side of the protocol: it frames invocations and
// decodes response frame bodies
type IWireCodec interface {
	// EncodeRequest encodes an invocation into a complete, length prefixed frame
	EncodeRequest(correlationID int64, inv IInvocation) ([]byte, error)
	// DecodeResponse decodes a frame body as returned by SplitFrame
	DecodeResponse(body []byte) (*common.Response, error)
	// Version returns the protocol version spoken by the codec
	Version() int8
}

// NewBinaryCodec creates a codec for the given protocol version. If tables
// is nil, result tables are decoded with SchemaTableDecoder.
func NewBinaryCodec(version int8, tables ITableDecoder) IWireCodec {
	if tables == nil {
		tables = SchemaTableDecoder{}
	}
	return &binaryCodecImpl{version: version, tables: tables}
}

// binaryCodecImpl implements IWireCodec. It is stateless and safe for
// concurrent use.
type binaryCodecImpl struct {
	version int8
	tables  ITableDecoder
}

// --------------------------------------------------------------------------
// Interface Methods (docu see wire.IWireCodec)
// --------------------------------------------------------------------------

func (c *binaryCodecImpl) EncodeRequest(correlationID int64, inv IInvocation) ([]byte, error) {
	return EncodeRequest(c.version, correlationID, inv)
}

func (c *binaryCodecImpl) DecodeResponse(body []byte) (*common.Response, error) {
	resp, err := DecodeResponse(body, c.version, c.tables)
	if err != nil {
		Logger.Debugf("failed to decode %d byte response frame: %v", len(body), err)
	}
	return resp, err
}

func (c *binaryCodecImpl) Version() int8 {
	return c.version
}
