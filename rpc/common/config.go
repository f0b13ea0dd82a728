package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProtocolVersion is the wire protocol version spoken by this client
const ProtocolVersion int8 = 1

// --------------------------------------------------------------------------
// Shared socket configuration
// --------------------------------------------------------------------------

// SocketConf holds buffer settings that apply to every socket transport
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// ClientTransportConfig configures how the client connects to servers
type ClientTransportConfig struct {
	SocketConf
	TCPConf
	Endpoints              []string
	ConnectionsPerEndpoint int
}

// EngineConf configures the invocation engine
type EngineConf struct {
	// MaxQueuedBytes is the outbound queue depth (in bytes) above which a
	// channel is backpressured. 0 disables the check.
	MaxQueuedBytes int
	// MaxOutstanding is the number of unanswered requests above which a
	// channel is backpressured. 0 disables the check.
	MaxOutstanding int
	// PollInterval bounds how long a blocking pump waits for I/O before it
	// re-checks its exit condition
	PollInterval time.Duration
	// IOSlice is how long one pump pass may wait on a socket, both for it to
	// accept queued bytes and for response bytes to arrive
	IOSlice time.Duration
	// RejectOnBackpressure makes InvokeAsync fail with ErrBackpressureRejected
	// instead of enqueueing when the status observer vetoes blocking
	RejectOnBackpressure bool
	// Version is the protocol version written to and expected in frames
	Version int8
}

// ClientConfig holds all client side configuration parameters
type ClientConfig struct {
	TimeoutSecond int
	Username      string
	Password      string
	Transport     ClientTransportConfig
	Engine        EngineConf
}

// DefaultClientConfig returns a configuration with the defaults used by the CLI
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TimeoutSecond: 10,
		Transport: ClientTransportConfig{
			Endpoints:              []string{"localhost:21212"},
			ConnectionsPerEndpoint: 1,
			TCPConf:                TCPConf{TCPNoDelay: true},
		},
		Engine: EngineConf{
			MaxQueuedBytes: 256 * 1024,
			MaxOutstanding: 3000,
			PollInterval:   10 * time.Millisecond,
			IOSlice:        time.Millisecond,
			Version:        ProtocolVersion,
		},
	}
}

// Timeout returns the connect/login timeout as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Username", c.Username)
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Engine
	addSection("Engine")
	addField("Protocol Version", strconv.Itoa(int(c.Engine.Version)))
	addField("Max Queued Bytes", strconv.Itoa(c.Engine.MaxQueuedBytes))
	addField("Max Outstanding", strconv.Itoa(c.Engine.MaxOutstanding))
	addField("Poll Interval", c.Engine.PollInterval.String())
	addField("I/O Slice", c.Engine.IOSlice.String())
	addField("Reject On Backpressure", strconv.FormatBool(c.Engine.RejectOnBackpressure))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Procedure server configuration
// --------------------------------------------------------------------------

// ServerTransportConfig configures the listening socket of the procedure server
type ServerTransportConfig struct {
	SocketConf
	TCPConf
	Endpoint string
}

// ServerConfig holds all configuration parameters of the procedure server
type ServerConfig struct {
	TimeoutSecond int64
	Transport     ServerTransportConfig

	// Per connection request handling. Responses of one connection are
	// written in request order only if MaxWorkersPerConn is 1.
	MaxWorkersPerConn int
	BufferSize        int

	// Latency is added to every procedure execution
	Latency time.Duration

	// Credentials accepted by the login handshake. An empty Username accepts
	// every login.
	Username string
	Password string

	// Version is the protocol version written in response frames
	Version int8

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the configuration used by the serve command
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		TimeoutSecond:     0,
		Transport:         ServerTransportConfig{Endpoint: "localhost:21212", TCPConf: TCPConf{TCPNoDelay: true}},
		MaxWorkersPerConn: 1,
		BufferSize:        64 * 1024,
		Version:           ProtocolVersion,
		LogLevel:          "info",
	}
}

// Timeout returns the read/write timeout as a duration, 0 means none
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Procedure Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Protocol Version", strconv.Itoa(int(c.Version)))
	addField("Workers Per Conn", strconv.Itoa(max(1, c.MaxWorkersPerConn)))
	addField("Buffer Size", strconv.Itoa(c.BufferSize))
	addField("Latency", c.Latency.String())
	if c.Username != "" {
		addField("Authentication", "user "+c.Username)
	} else {
		addField("Authentication", "disabled")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
