// Package server implements a procedure server that speaks the same wire
// protocol as the invocation engine in package client.
//
// It answers the login handshake, decodes request frames, runs the
// registered ProcedureFunc and writes a response frame back. It serves as
// the target of the serve command and as the peer of the end-to-end tests.
//
// Key Components:
//
//   - ProcedureServer: owns the procedure registry and plugs its request
//     and login handlers into a transport.IServerTransport.
//
//   - IProcedureAdapter: a named set of procedures. NewSystemAdapter
//     provides @Ping, Echo and Sleep, NewKeyValueAdapter provides Put, Get
//     and Delete over an in-memory table. Both are registered by default.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Transport.Endpoint = "/tmp/voltc.sock"
//
//	s := server.NewProcedureServer(config, unix.NewUnixServerTransport())
//	s.Register("Add", func(params []any) *common.Response {
//	  ...
//	})
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Statuses other than success, user abort, graceful failure and unexpected
// failure never leave the server: a procedure returning any other status is
// reported as an unexpected failure.
//
// Thread Safety:
//
//	Procedures may run concurrently (see ServerConfig.MaxWorkersPerConn)
//	and must be safe for concurrent use. Register may be called while the
//	server is running.
package server
