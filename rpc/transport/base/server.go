package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// serverTransport implements the core server transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type serverTransport struct {
	connector  transport.IServerConnector
	handler    transport.ServerHandleFunc
	login      transport.ServerLoginFunc
	config     common.ServerConfig
	listener   net.Listener
	bufferPool *sync.Pool
	conns      *xsync.MapOf[uint64, net.Conn]
	nextConnID atomic.Uint64
	closing    atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with a per
// connection worker pool
func NewBaseServerTransport(connector transport.IServerConnector) transport.IServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterLogin(login transport.ServerLoginFunc) {
	t.login = login
}

func (t *serverTransport) Bind(config common.ServerConfig) error {
	t.config = config

	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultReadBufferSize
	}
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener
	return nil
}

func (t *serverTransport) Serve() error {
	if t.listener == nil {
		return fmt.Errorf("server transport is not bound")
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), t.listener.Addr(), t.workersPerConn())

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closing.Load() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				Logger.Errorf("Accept error: %v", err)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}

		id := t.nextConnID.Add(1)
		t.conns.Store(id, conn)

		// Handle the connection in a goroutine
		go func() {
			defer t.conns.Delete(id)
			t.handleConnection(conn, int64(id))
		}()
	}
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if err := t.Bind(config); err != nil {
		return err
	}
	return t.Serve()
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	t.closing.Store(true)
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.conns.Range(func(id uint64, conn net.Conn) bool {
		conn.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) workersPerConn() int {
	return max(1, t.config.MaxWorkersPerConn)
}

// handshake answers the login frame that opens every connection
func (t *serverTransport) handshake(conn net.Conn, connID int64) error {
	body, err := readFrame(conn, nil)
	if err != nil {
		return fmt.Errorf("failed to read login: %w", err)
	}
	req, err := wire.DecodeLoginRequest(body, t.config.Version)
	if err != nil {
		return fmt.Errorf("invalid login: %w", err)
	}

	resp := &wire.LoginResponse{Code: wire.LoginOK}
	if t.login != nil {
		resp = t.login(req)
	}
	resp.ConnectionID = connID

	frame, err := wire.EncodeLoginResponse(t.config.Version, resp)
	if err != nil {
		return err
	}
	if err := writeFrame(conn, frame); err != nil {
		return fmt.Errorf("failed to write login response: %w", err)
	}
	if resp.Code != wire.LoginOK {
		return fmt.Errorf("%w: user %q %s", common.ErrAuthenticationFailed, req.Username, resp.Code)
	}
	return nil
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn, connID int64) {
	defer conn.Close()

	// Timeout in seconds
	timeout := t.config.Timeout()

	if err := t.handshake(conn, connID); err != nil {
		Logger.Warningf("Login from %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	Logger.Debugf("Accepted connection %d from %s", connID, conn.RemoteAddr())

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.workersPerConn())

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(body []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		// Process the request
		start := time.Now()
		resp := t.handler(body)
		Logger.Debugf("Processed request on connection %d in %s", connID, time.Since(start))
		if resp == nil {
			return
		}

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		if err := writeFrame(conn, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		body, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Acquire a slot in the semaphore (blocks if the worker limit is reached)
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(body)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			Logger.Debugf("Connection %d closed by client", connID)
			break
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closing.Load() {
				Logger.Errorf("Error handling request on connection %d: %v", connID, err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
