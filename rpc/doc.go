// Package rpc provides an asynchronous client for a stored procedure
// database speaking a length prefixed binary protocol, plus a procedure
// server speaking the same protocol.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the system, including the
//     Response and Table types, status codes, sentinel errors, configuration
//     structures and logging.
//
//   - wire: The binary codec. Request framing with typed parameters,
//     response decoding over bounded views, result tables and the login
//     exchange.
//
//   - transport: Connection abstractions with pluggable implementations
//     (TCP, Unix sockets). The base subpackage holds the connection channel
//     used by the client and the server transport.
//
//   - client: The invocation engine correlating requests and responses,
//     with backpressure and status observation.
//
//   - server: A procedure server executing registered procedures.
package rpc
