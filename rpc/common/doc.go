// Package common provides core data structures and utilities shared across
// the voltc client, its wire codec and the procedure server.
//
// The package focuses on:
//   - The response model delivered to callers (Response, StatusCode, Table)
//   - Sentinel errors for precondition, framing and transport failures
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger registry
//
// Key Components:
//
//   - Response: The outcome of one stored procedure invocation. Every accepted
//     invocation receives exactly one Response, either decoded from the wire or
//     synthesized by NewConnectionLostResponse. Both kinds share one structure
//     so callers only need a single code path.
//
//   - StatusCode: Closed enumeration of invocation outcomes. The numeric values
//     are part of the wire protocol.
//
//   - Table / ValueType: Result tables and the value types shared by procedure
//     parameters and table columns.
//
//   - ClientConfig: Connection, transport and engine settings (backpressure
//     thresholds, poll interval, protocol version).
//
//   - ServerConfig: Settings of the procedure server.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logging registry while providing consistent formatting across the module.
package common
