// Package unix implements Unix domain socket connectors for the voltc
// transport layer, for a client and procedure server running on the same
// machine.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, replacing a stale
//     socket file if one exists
//
// Performance Characteristics:
//
//   - Reduced overhead: Eliminates TCP/IP stack processing
//   - Lower latency: Direct kernel-mediated IPC avoids network subsystem overhead
package unix
