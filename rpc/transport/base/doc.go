// Package base provides the protocol independent part of the transport
// layer: the client side connection channel, the login handshake and the
// server transport. It is extended with protocol specific connectors by the
// tcp and unix packages.
//
// The package focuses on:
//   - Owning the outbound and inbound byte buffers of every connection
//   - Socket I/O bounded by short deadlines, driven by the engine goroutine
//   - Length prefixed framing on both sides of the connection
//
// Key Components:
//
//   - Channel: One duplex connection. The outbound side is a queue of
//     complete frames written with vectored writes (net.Buffers) under a
//     short write deadline, so a flush never stalls on a slow peer. The
//     inbound side is filled by Receive, one read under a read deadline,
//     and accumulates bytes until wire.SplitFrame finds a complete frame.
//     Nothing is read while nobody calls Receive, so a peer can not grow the
//     client's memory beyond the frames it is currently dispatching.
//
//   - Dial: Connect, upgrade and login.
//
//   - NewLoginHandshaker / NoHandshake: transport.IHandshaker implementations.
//
//   - serverTransport: Accepts connections, answers the login frame and
//     routes request frames to the registered handler with a per connection
//     worker pool.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers,
//     reducing GC pressure and memory allocations.
//
//   - Frame Batching: Queued frames are written with net.Buffers, combining
//     them into a single writev call where the socket supports it.
//
// Thread Safety:
//
//	A Channel is driven by exactly one goroutine (the engine owner) and has
//	no goroutines of its own. The server transport creates a goroutine for
//	each connection and serializes writes per connection with a mutex.
package base
