package transport

import (
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"net"
	"time"
)

// Credentials are presented to the server during the login handshake
type Credentials struct {
	Username string
	Password string
}

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

// IClientConnector defines the transport specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// IHandshaker performs the login exchange on a freshly connected socket.
// It runs before the connection is handed to the invocation engine and may
// block up to timeout.
type IHandshaker interface {
	Login(conn net.Conn, creds Credentials, timeout time.Duration) (*wire.LoginResponse, error)
}

// --------------------------------------------------------------------------
// Server side
// --------------------------------------------------------------------------

// ServerHandleFunc handles one request frame body and returns the complete
// response frame to write back. A nil response writes nothing.
type ServerHandleFunc func(body []byte) (resp []byte)

// ServerLoginFunc decides on a login request
type ServerLoginFunc func(req *wire.LoginRequest) *wire.LoginResponse

// IServerConnector defines the transport specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// IServerTransport accepts connections, performs the login exchange and
// routes request frames to the registered handler
type IServerTransport interface {
	// RegisterHandler registers the request handler
	RegisterHandler(handler ServerHandleFunc)
	// RegisterLogin registers the login decision, nil accepts every login
	RegisterLogin(login ServerLoginFunc)
	// Bind creates the listener without accepting connections yet
	Bind(config common.ServerConfig) error
	// Serve accepts connections until Close is called
	Serve() error
	// Listen is Bind followed by Serve
	Listen(config common.ServerConfig) error
	// Addr returns the bound address, nil before Bind
	Addr() net.Addr
	// Close stops accepting and closes every open connection
	Close() error
}
