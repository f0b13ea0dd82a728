package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

const defaultReadBufferSize = 64 * 1024

// Channel is one duplex connection to one server node. It owns the
// outbound frame queue and the inbound byte accumulator of that connection.
//
// The socket is only read and written by Flush and Receive, both bounded by a
// deadline. A Channel belongs to the goroutine that drives the engine and is
// not synchronized.
type Channel struct {
	id       uuid.UUID
	endpoint string
	conn     net.Conn
	login    *wire.LoginResponse

	outbound    net.Buffers
	queuedBytes int
	inbound     []byte
	readBuf     []byte

	outstanding   int
	backpressured bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// --------------------------------------------------------------------------
// Channel Factory Methods
// --------------------------------------------------------------------------

// Dial connects to endpoint, upgrades the socket and performs the login
// handshake. Nothing is read from the socket until Receive is called.
func Dial(
	connector transport.IClientConnector,
	handshaker transport.IHandshaker,
	endpoint string,
	creds transport.Credentials,
	config common.ClientConfig,
) (*Channel, error) {
	conn, err := connector.Connect(endpoint, config.Timeout())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	if err := connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}

	login, err := handshaker.Login(conn, creds, config.Timeout())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("login to %s failed: %w", endpoint, err)
	}

	readBufferSize := config.Transport.ReadBufferSize
	if readBufferSize <= 0 {
		readBufferSize = defaultReadBufferSize
	}

	ch := newChannel(conn, endpoint, login)
	ch.readBuf = make([]byte, readBufferSize)

	Logger.Infof("Connected to %s via %s (channel %s, host %d, connection %d)",
		endpoint, connector.GetName(), ch.id, login.HostID, login.ConnectionID)
	return ch, nil
}

func newChannel(conn net.Conn, endpoint string, login *wire.LoginResponse) *Channel {
	return &Channel{
		id:       uuid.New(),
		endpoint: endpoint,
		conn:     conn,
		login:    login,
	}
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

// ID returns the unique identity of the channel
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// Endpoint returns the endpoint the channel is connected to
func (c *Channel) Endpoint() string {
	return c.endpoint
}

// Login returns the server answer to the login handshake
func (c *Channel) Login() *wire.LoginResponse {
	return c.login
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s(%s)", c.endpoint, c.id.String()[:8])
}

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// Enqueue appends a complete frame to the outbound queue
func (c *Channel) Enqueue(frame []byte) {
	c.outbound = append(c.outbound, frame)
	c.queuedBytes += len(frame)
}

// Flush writes queued frames until the queue is empty or the socket stops
// accepting bytes before deadline. Unwritten bytes stay queued. Only errors
// other than the deadline passing are returned; they leave the channel
// unusable.
func (c *Channel) Flush(deadline time.Time) error {
	if len(c.outbound) == 0 {
		return nil
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	n, err := c.outbound.WriteTo(c.conn)
	c.queuedBytes -= int(n)
	if len(c.outbound) == 0 {
		c.outbound = nil
	}

	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	return nil
}

// QueuedBytes returns the number of bytes waiting to be written
func (c *Channel) QueuedBytes() int {
	return c.queuedBytes
}

// HasPendingWrites reports whether bytes are waiting to be written
func (c *Channel) HasPendingWrites() bool {
	return c.queuedBytes > 0
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// Receive performs one read of at most the read buffer size, waiting until
// deadline for bytes to arrive, and appends them to the inbound accumulator.
// It returns the number of bytes read. A passed deadline is not an error,
// any other error leaves the channel unusable.
func (c *Channel) Receive(deadline time.Time) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	if c.readBuf == nil {
		c.readBuf = make([]byte, defaultReadBufferSize)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := c.conn.Read(c.readBuf)
	c.Append(c.readBuf[:n])

	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return n, err
	}
	return n, nil
}

// Append adds received bytes to the inbound accumulator
func (c *Channel) Append(chunk []byte) {
	c.inbound = append(c.inbound, chunk...)
}

// NextFrame removes the first complete frame from the inbound accumulator
// and returns its body. ok is false if no complete frame is buffered yet.
// The body is only valid until the next call to Append.
func (c *Channel) NextFrame() (body []byte, ok bool, err error) {
	body, n, err := wire.SplitFrame(c.inbound)
	if err != nil || body == nil {
		return nil, false, err
	}
	c.inbound = c.inbound[n:]
	if len(c.inbound) == 0 {
		c.inbound = nil
	}
	return body, true, nil
}

// --------------------------------------------------------------------------
// Load tracking
// --------------------------------------------------------------------------

// Outstanding returns the number of requests sent on the channel and not yet answered
func (c *Channel) Outstanding() int {
	return c.outstanding
}

// AddOutstanding adjusts the outstanding request count by delta
func (c *Channel) AddOutstanding(delta int) {
	c.outstanding += delta
}

// IsBackpressured returns the backpressure flag
func (c *Channel) IsBackpressured() bool {
	return c.backpressured
}

// SetBackpressured sets the backpressure flag and reports whether it changed
func (c *Channel) SetBackpressured(active bool) (changed bool) {
	changed = c.backpressured != active
	c.backpressured = active
	return changed
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// IsClosed reports whether Close has been called
func (c *Channel) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the connection and drops all queued bytes. Close is idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.outbound = nil
		c.queuedBytes = 0
		err = c.conn.Close()
	})
	return err
}
