package server

import (
	"crypto/subtle"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("server")

// Build is reported to clients in the login response
const Build = "voltc-procedure-server"

// ProcedureServer executes stored procedure invocations received over a
// server transport. It speaks the same wire protocol as the invocation
// engine and is used by the serve command and by tests.
type ProcedureServer struct {
	config     common.ServerConfig
	transport  transport.IServerTransport
	procedures *xsync.MapOf[string, ProcedureFunc]
	metrics    *serverMetrics
	bound      bool
}

// NewProcedureServer creates a server with the system and key-value
// procedures registered
//
// Usage:
//
//	s := server.NewProcedureServer(
//		config,
//		tcp.NewTCPServerTransport(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewProcedureServer(config common.ServerConfig, transport transport.IServerTransport) *ProcedureServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &ProcedureServer{
		config:     config,
		transport:  transport,
		procedures: xsync.NewMapOf[string, ProcedureFunc](),
		metrics:    newServerMetrics(),
	}
	s.RegisterAdapter(NewSystemAdapter())
	s.RegisterAdapter(NewKeyValueAdapter())
	return s
}

// Register adds or replaces a procedure
func (s *ProcedureServer) Register(name string, fn ProcedureFunc) {
	s.procedures.Store(name, fn)
}

// RegisterAdapter registers every procedure of the adapter
func (s *ProcedureServer) RegisterAdapter(adapter IProcedureAdapter) {
	for name, fn := range adapter.Procedures() {
		s.Register(name, fn)
	}
}

// Bind creates the listener. After Bind, Addr returns the bound address and
// clients may connect even before Serve is called.
func (s *ProcedureServer) Bind() error {
	if s.bound {
		return nil
	}
	if s.config.Version == 0 {
		s.config.Version = common.ProtocolVersion
	}

	Logger.Infof("Created procedure server")
	Logger.Infof("%s", s.config.String())

	s.transport.RegisterHandler(s.handle)
	s.transport.RegisterLogin(s.login)
	if err := s.transport.Bind(s.config); err != nil {
		return err
	}
	s.bound = true
	return nil
}

// Serve binds the listener if needed and accepts connections until Close
func (s *ProcedureServer) Serve() error {
	if err := s.Bind(); err != nil {
		return err
	}
	return s.transport.Serve()
}

// Addr returns the bound address, nil before Bind
func (s *ProcedureServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close stops the server and drops all connections
func (s *ProcedureServer) Close() error {
	return s.transport.Close()
}

// WriteMetrics writes the server metrics in Prometheus text format
func (s *ProcedureServer) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Transport callbacks
// --------------------------------------------------------------------------

// login accepts every login if no username is configured, otherwise the
// username and password hash must match
func (s *ProcedureServer) login(req *wire.LoginRequest) *wire.LoginResponse {
	resp := &wire.LoginResponse{Code: wire.LoginOK, Build: Build}

	switch {
	case req.Service != wire.ServiceDatabase:
		Logger.Warningf("Rejected login for unknown service %q", req.Service)
		resp.Code = wire.LoginRejected
	case s.config.Username == "":
	case req.Username != s.config.Username,
		subtle.ConstantTimeCompare(req.PasswordHash, wire.HashPassword(s.config.Password)) != 1:
		Logger.Warningf("Rejected login of user %q", req.Username)
		resp.Code = wire.LoginRejected
	}

	if resp.Code == wire.LoginOK {
		s.metrics.logins.Inc()
	} else {
		s.metrics.loginFailures.Inc()
	}
	return resp
}

// handle decodes one request, runs the procedure and encodes the response
func (s *ProcedureServer) handle(body []byte) []byte {
	start := time.Now()

	req, err := wire.DecodeRequest(body, s.config.Version)
	if err != nil {
		s.metrics.malformed.Inc()
		Logger.Warningf("Dropping malformed request: %v", err)
		return nil
	}

	resp := s.execute(req)
	resp.CorrelationID = req.CorrelationID
	resp.ClusterRoundTrip = int32(time.Since(start).Milliseconds())
	s.metrics.observe(req.Procedure, resp, time.Since(start))

	frame, err := wire.EncodeResponse(s.config.Version, resp, wire.ResponseOptions{})
	if err != nil {
		Logger.Errorf("Failed to encode response of %s: %v", req.Procedure, err)
		frame, err = wire.EncodeResponse(s.config.Version,
			common.NewErrorResponse(req.CorrelationID, common.StatusUnexpectedFailure, err.Error()),
			wire.ResponseOptions{})
		if err != nil {
			return nil
		}
	}
	return frame
}

// execute runs the procedure of req and always returns a response with a
// status that may appear on the wire
func (s *ProcedureServer) execute(req *wire.Request) (resp *common.Response) {
	fn, ok := s.procedures.Load(req.Procedure)
	if !ok {
		return failure(common.StatusUnexpectedFailure, fmt.Sprintf("Procedure %s was not found", req.Procedure))
	}

	if s.config.Latency > 0 {
		time.Sleep(s.config.Latency)
	}

	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Procedure %s panicked: %v", req.Procedure, r)
			resp = failure(common.StatusUnexpectedFailure, fmt.Sprintf("procedure %s failed: %v", req.Procedure, r))
		}
	}()

	resp = fn(req.Params)
	if resp == nil {
		return success()
	}
	if !resp.Status.Valid() {
		Logger.Errorf("Procedure %s returned invalid status %d", req.Procedure, resp.Status)
		return failure(common.StatusUnexpectedFailure, fmt.Sprintf("procedure %s returned invalid status %s", req.Procedure, resp.Status))
	}
	return resp
}
