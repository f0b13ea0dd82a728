// Package transport defines the contracts between the invocation engine, the
// procedure server and the socket layer. It provides a common contract that
// all transport implementations must fulfill, so the engine never depends on
// a concrete network protocol.
//
// The package focuses on:
//   - Connector interfaces that isolate dialing, listening and socket options
//   - The login handshake as an injectable collaborator
//   - Enabling multiple transport implementations (TCP, Unix sockets)
//
// Key Components:
//
//   - IClientConnector: Dials an endpoint and applies client socket options.
//
//   - IHandshaker: Performs the login exchange on a new connection before it
//     is handed to the engine.
//
//   - IServerConnector / IServerTransport: Listener side used by the
//     procedure server.
//
//   - ServerHandleFunc / ServerLoginFunc: Callbacks the server transport
//     routes request and login frames to.
package transport
