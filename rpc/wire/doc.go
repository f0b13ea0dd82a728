// Package wire implements the binary protocol spoken between voltc and the
// database: request framing, response decoding, parameter marshaling and
// result table layout. It performs no I/O and keeps no state.
//
// The package focuses on:
//   - Exact encoding of the response frame, including the presence bitmask
//     that governs the optional status strings and the skippable extended
//     info block
//   - Bounded decoding: every read goes through a View, so a short or
//     corrupt frame fails with common.ErrMalformedFrame instead of reading
//     past the buffer
//   - Nested tables: each table is decoded against a window limited to its
//     declared length, so a decoder cannot consume bytes of a sibling table
//
// Key Components:
//
//   - View: bounded cursor with checked fixed width and length prefixed reads,
//     Skip and Window.
//
//   - SplitFrame / Frame: int32 length prefix framing of the byte stream.
//
//   - EncodeRequest / DecodeRequest: invocation frames. Parameters are
//     marshaled by the IInvocation itself; Procedure is the default
//     implementation with positional, typed parameters.
//
//   - DecodeResponse / EncodeResponse: response frames. The encoder is used by
//     the procedure server and by tests.
//
//   - ITableDecoder: SchemaTableDecoder decodes columns and rows,
//     RawTableDecoder keeps the encoded bytes.
//
//   - IWireCodec: the interface consumed by the invocation engine.
//
// All integers are big endian.
//
// Thread Safety:
//
//	All functions and codec implementations are stateless and safe for
//	concurrent use. A View is not.
package wire
