// Package tcp implements TCP socket connectors for the voltc transport
// layer. It provides concrete implementations of the transport connector
// interfaces; framing, login and buffering live in the base package.
//
// Key Components:
//
//   - clientConnector: Dials with a timeout and applies TCPConf and
//     SocketConf options (no delay, keep-alive, linger, buffer sizes)
//
//   - serverConnector: Creates TCP listeners for the procedure server and
//     applies the same options to accepted connections
package tcp
