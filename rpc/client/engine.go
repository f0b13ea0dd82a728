package client

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/transport/base"
	"github.com/ValentinKolb/voltc/rpc/transport/tcp"
	"github.com/ValentinKolb/voltc/rpc/transport/unix"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

var (
	Logger = logger.GetLogger("rpc")
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultIOSlice      = time.Millisecond
)

// Engine is the asynchronous invocation engine. It correlates requests with
// responses over any number of channels and dispatches callbacks.
//
// All network progress happens while the caller is inside RunOnce, Run,
// Drain, Invoke or a blocking InvokeAsync. An Engine must be driven by one
// goroutine at a time; use several engines for parallelism. Outstanding,
// Connections, Stats and WriteMetrics may be called from any goroutine.
type Engine struct {
	config     common.ClientConfig
	codec      wire.IWireCodec
	connector  transport.IClientConnector
	handshaker transport.IHandshaker
	observer   IStatusObserver
	gate       BackpressureGate
	tables     wire.ITableDecoder

	pending  *pendingTable
	channels []*base.Channel
	liveConn atomic.Int64

	nextID        int64
	nextChannel   int
	stopRequested bool
	backpressured bool
	allowEnqueue  bool
	closed        bool

	metrics *engineMetrics
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver sets the status observer, NoopObserver by default
func WithObserver(observer IStatusObserver) Option {
	return func(e *Engine) { e.observer = observer }
}

// WithConnector forces a connector for every endpoint. By default the
// connector is chosen from the endpoint (see CreateConnection).
func WithConnector(connector transport.IClientConnector) Option {
	return func(e *Engine) { e.connector = connector }
}

// WithHandshaker replaces the login handshake
func WithHandshaker(handshaker transport.IHandshaker) Option {
	return func(e *Engine) { e.handshaker = handshaker }
}

// WithTableDecoder sets the decoder for result tables, wire.SchemaTableDecoder by default
func WithTableDecoder(tables wire.ITableDecoder) Option {
	return func(e *Engine) { e.tables = tables }
}

// NewEngine creates an engine without connections
func NewEngine(config common.ClientConfig, opts ...Option) *Engine {
	if config.Engine.PollInterval <= 0 {
		config.Engine.PollInterval = defaultPollInterval
	}
	if config.Engine.IOSlice <= 0 {
		config.Engine.IOSlice = defaultIOSlice
	}

	e := &Engine{
		config:   config,
		observer: NoopObserver{},
		gate:     NewBackpressureGate(config.Engine),
		pending:  newPendingTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.handshaker == nil {
		e.handshaker = base.NewLoginHandshaker(config.Engine.Version)
	}
	e.codec = wire.NewBinaryCodec(config.Engine.Version, e.tables)
	e.metrics = newEngineMetrics(e.Outstanding, e.Connections)
	return e
}

// --------------------------------------------------------------------------
// Connections
// --------------------------------------------------------------------------

// CreateConnection connects and logs in to one server node. Endpoints of the
// form "unix:///path" or an absolute path use a Unix socket, everything else
// ("host:port", "tcp://host:port") uses TCP.
func (e *Engine) CreateConnection(endpoint string, creds transport.Credentials) error {
	if e.closed {
		return common.ErrEngineClosed
	}

	connector, address := e.connector, endpoint
	if connector == nil {
		connector, address = connectorFor(endpoint)
	}

	ch, err := base.Dial(connector, e.handshaker, address, creds, e.config)
	if err != nil {
		return err
	}

	e.channels = append(e.channels, ch)
	e.liveConn.Store(int64(len(e.channels)))
	e.updateBackpressure(ch)
	return nil
}

// Connect creates ConnectionsPerEndpoint connections to every configured
// endpoint with the configured credentials. It fails only if no connection
// could be established.
func (e *Engine) Connect() error {
	if len(e.config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	perEndpoint := max(1, e.config.Transport.ConnectionsPerEndpoint)
	creds := transport.Credentials{Username: e.config.Username, Password: e.config.Password}

	var errs []error
	for _, endpoint := range e.config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			if err := e.CreateConnection(endpoint, creds); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
				errs = append(errs, err)
			}
		}
	}

	if len(e.channels) == 0 {
		return fmt.Errorf("failed to connect to any endpoint: %w", errors.Join(errs...))
	}

	Logger.Infof("Connected %d out of %d connections to %d endpoints",
		len(e.channels), len(e.config.Transport.Endpoints)*perEndpoint, len(e.config.Transport.Endpoints))
	return nil
}

// connectorFor picks the connector for an endpoint and strips the scheme
func connectorFor(endpoint string) (transport.IClientConnector, string) {
	switch {
	case strings.HasPrefix(endpoint, "unix://"):
		return unix.NewClientConnector(), strings.TrimPrefix(endpoint, "unix://")
	case strings.HasPrefix(endpoint, "/"):
		return unix.NewClientConnector(), endpoint
	default:
		return tcp.NewClientConnector(), strings.TrimPrefix(endpoint, "tcp://")
	}
}

// --------------------------------------------------------------------------
// Invocation
// --------------------------------------------------------------------------

// InvokeAsync queues an invocation and returns its correlation id. The
// callback is called exactly once later, with the server response or with a
// ConnectionLost response if the channel fails first.
//
// If every channel is backpressured the call pumps the reactor until one
// clears, unless the status observer allows enqueueing anyway.
func (e *Engine) InvokeAsync(inv wire.IInvocation, callback ICallback) (int64, error) {
	if e.closed {
		return 0, common.ErrEngineClosed
	}
	if len(e.channels) == 0 {
		return 0, common.ErrNoConnections
	}
	if err := inv.Validate(); err != nil {
		return 0, err
	}

	ch, err := e.acquireChannel()
	if err != nil {
		return 0, err
	}

	id := e.nextID + 1
	frame, err := e.codec.EncodeRequest(id, inv)
	if err != nil {
		return 0, err
	}
	e.nextID = id

	entry := &pendingInvocation{
		id:        id,
		callback:  callback,
		channel:   ch,
		submitted: time.Now(),
		procedure: inv.ProcedureName(),
	}
	if !e.pending.add(entry) {
		return 0, fmt.Errorf("%w: correlation id %d is already pending", common.ErrReactorFault, id)
	}

	ch.Enqueue(frame)
	ch.AddOutstanding(1)
	e.metrics.observeQueued(frame)
	e.updateBackpressure(ch)
	return id, nil
}

// Invoke runs an invocation and waits for its response. Callbacks of other
// invocations may run while waiting. A lost connection is reported as a
// response with common.StatusConnectionLost, not as an error.
func (e *Engine) Invoke(inv wire.IInvocation) (*common.Response, error) {
	var result *common.Response
	_, err := e.InvokeAsync(inv, CallbackFunc(func(resp *common.Response) (bool, error) {
		result = resp
		return false, nil
	}))
	if err != nil {
		return nil, err
	}

	for result == nil {
		if err := e.pump(true); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// acquireChannel returns the channel for the next invocation, blocking while
// every channel is backpressured
func (e *Engine) acquireChannel() (*base.Channel, error) {
	for {
		if len(e.channels) == 0 {
			return nil, common.ErrNoConnections
		}
		if ch := e.selectChannel(false); ch != nil {
			return ch, nil
		}

		// every channel is backpressured
		if !e.backpressured {
			e.backpressured = true
			e.metrics.backpressure.Inc()
			Logger.Debugf("All %d channels are backpressured", len(e.channels))
			e.allowEnqueue = e.observer.OnBackpressure(true)
		}
		if e.allowEnqueue {
			if e.config.Engine.RejectOnBackpressure {
				e.metrics.rejected.Inc()
				return nil, common.ErrBackpressureRejected
			}
			return e.selectChannel(true), nil
		}

		if err := e.pump(true); err != nil {
			return nil, err
		}
	}
}

// selectChannel picks the live channel with the fewest outstanding requests,
// ties broken round robin. Backpressured channels are skipped unless
// includeBackpressured is set.
func (e *Engine) selectChannel(includeBackpressured bool) *base.Channel {
	n := len(e.channels)
	best := -1
	for i := 0; i < n; i++ {
		idx := (e.nextChannel + i) % n
		ch := e.channels[idx]
		if ch.IsBackpressured() && !includeBackpressured {
			continue
		}
		if best < 0 || ch.Outstanding() < e.channels[best].Outstanding() {
			best = idx
		}
	}
	if best < 0 {
		return nil
	}
	e.nextChannel = (best + 1) % n
	return e.channels[best]
}

// --------------------------------------------------------------------------
// Reactor
// --------------------------------------------------------------------------

// RunOnce performs all currently possible I/O and dispatches every response
// that can be decoded, without waiting for more network activity.
func (e *Engine) RunOnce() error {
	if e.closed {
		return common.ErrEngineClosed
	}
	if len(e.channels) == 0 {
		return common.ErrNoConnections
	}
	return e.pump(false)
}

// Run pumps until a callback requests a stop. It fails with
// common.ErrNoConnections once the last channel is gone.
func (e *Engine) Run() error {
	e.stopRequested = false
	for {
		if e.closed {
			return common.ErrEngineClosed
		}
		if len(e.channels) == 0 {
			return common.ErrNoConnections
		}
		if err := e.pump(true); err != nil {
			return err
		}
		if e.stopRequested {
			e.stopRequested = false
			return nil
		}
	}
}

// Drain pumps until no invocation is pending or a callback requests a stop.
// It returns true only if the pending table emptied without a stop request.
func (e *Engine) Drain() (bool, error) {
	e.stopRequested = false
	for {
		if e.stopRequested {
			e.stopRequested = false
			return false, nil
		}
		if e.pending.len() == 0 {
			return true, nil
		}
		if len(e.channels) == 0 {
			return false, common.ErrNoConnections
		}
		if err := e.pump(true); err != nil {
			return false, err
		}
	}
}

// pump flushes queued writes, then reads from every channel and dispatches
// each complete frame. Reads wait at most one I/O slice per channel. With
// wait set, pump repeats until something was received or the poll interval
// passed.
func (e *Engine) pump(wait bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", common.ErrReactorFault, r)
		}
	}()

	until := time.Now().Add(e.config.Engine.PollInterval)
	for {
		e.flush()
		received := e.receive()
		if received || !wait || len(e.channels) == 0 || !time.Now().Before(until) {
			return nil
		}
	}
}

// flush writes queued bytes of every channel for at most the I/O slice
func (e *Engine) flush() {
	deadline := time.Now().Add(e.config.Engine.IOSlice)
	for _, ch := range slices.Clone(e.channels) {
		if ch.IsClosed() || !ch.HasPendingWrites() {
			continue
		}
		if err := ch.Flush(deadline); err != nil {
			e.failChannel(ch, fmt.Errorf("write failed: %w", err))
			continue
		}
		e.updateBackpressure(ch)
	}
}

// receive reads from every channel and reports whether any bytes arrived or
// a channel failed
func (e *Engine) receive() bool {
	received := false
	for _, ch := range slices.Clone(e.channels) {
		if e.receiveFrom(ch) {
			received = true
		}
	}
	return received
}

// receiveFrom reads from ch until no more bytes arrive within the I/O slice,
// dispatching the complete frames after every read
func (e *Engine) receiveFrom(ch *base.Channel) (received bool) {
	deadline := time.Now().Add(e.config.Engine.IOSlice)
	for slices.Contains(e.channels, ch) {
		n, err := ch.Receive(deadline)
		if n > 0 {
			received = true
			e.metrics.bytesReceived.Add(n)
			e.dispatchFrames(ch)
		}
		if err != nil {
			e.failChannel(ch, err)
			return true
		}
		if n == 0 {
			return received
		}
	}
	return received
}

// dispatchFrames decodes and dispatches every complete frame buffered in ch
func (e *Engine) dispatchFrames(ch *base.Channel) {
	for !ch.IsClosed() {
		body, ok, err := ch.NextFrame()
		if err != nil {
			e.failChannel(ch, err)
			return
		}
		if !ok {
			return
		}

		resp, err := e.codec.DecodeResponse(body)
		if err != nil {
			e.failChannel(ch, err)
			return
		}
		e.dispatch(ch, resp)
	}
}

// dispatch resolves the pending entry of a decoded response
func (e *Engine) dispatch(ch *base.Channel, resp *common.Response) {
	entry, ok := e.pending.take(resp.CorrelationID)
	if !ok {
		e.metrics.unknownResponses.Inc()
		Logger.Warningf("Received response for unknown correlation id %d on channel %s", resp.CorrelationID, ch)
		return
	}

	entry.channel.AddOutstanding(-1)
	e.updateBackpressure(entry.channel)

	resp.ClientRoundTrip = since(entry.submitted)
	e.invokeCallback(entry, resp)
}

// failChannel removes a channel and resolves all of its pending entries with
// a ConnectionLost response
func (e *Engine) failChannel(ch *base.Channel, cause error) {
	idx := slices.Index(e.channels, ch)
	if idx < 0 {
		return
	}
	e.channels = slices.Delete(e.channels, idx, idx+1)
	e.liveConn.Store(int64(len(e.channels)))
	e.nextChannel = 0
	_ = ch.Close()
	e.metrics.channelFailures.Inc()

	entries := e.pending.takeChannel(ch)
	if errors.Is(cause, io.EOF) {
		Logger.Warningf("Connection to %s closed by server, resolving %d pending invocations", ch.Endpoint(), len(entries))
	} else {
		Logger.Warningf("Connection to %s failed, resolving %d pending invocations: %v", ch.Endpoint(), len(entries), cause)
	}

	e.forceResolve(entries)
	e.refreshBackpressure()
	e.observer.OnConnectionLost(ch.Endpoint(), len(e.channels), cause)
}

// forceResolve delivers a ConnectionLost response to every entry
func (e *Engine) forceResolve(entries []*pendingInvocation) {
	for _, entry := range entries {
		resp := common.NewConnectionLostResponse(entry.id)
		resp.ClientRoundTrip = since(entry.submitted)
		e.invokeCallback(entry, resp)
	}
}

// invokeCallback runs the callback of entry, turning errors and panics into
// callback faults
func (e *Engine) invokeCallback(entry *pendingInvocation, resp *common.Response) {
	e.metrics.observeResponse(resp)
	if entry.callback == nil {
		return
	}

	stop, err := safeCallback(entry.callback, resp)
	if err != nil {
		e.metrics.callbackFaults.Inc()
		Logger.Errorf("Callback of %s (correlation id %d) failed: %v", entry.procedure, entry.id, err)
		e.observer.OnCallbackFault(err, resp)
	}
	if stop {
		e.stopRequested = true
	}
}

func safeCallback(callback ICallback, resp *common.Response) (stop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return callback.Callback(resp)
}

// updateBackpressure re-evaluates the gate for one channel
func (e *Engine) updateBackpressure(ch *base.Channel) {
	state := e.gate.Check(Depth{QueuedBytes: ch.QueuedBytes(), Outstanding: ch.Outstanding()})
	if ch.SetBackpressured(state == GateBackpressured) {
		Logger.Debugf("Channel %s is %s (%d bytes queued, %d outstanding)", ch, state, ch.QueuedBytes(), ch.Outstanding())
	}
	e.refreshBackpressure()
}

// refreshBackpressure notifies the observer once backpressure ended
func (e *Engine) refreshBackpressure() {
	if !e.backpressured {
		return
	}
	for _, ch := range e.channels {
		if !ch.IsBackpressured() {
			e.backpressured = false
			e.allowEnqueue = false
			Logger.Debugf("Backpressure cleared")
			e.observer.OnBackpressure(false)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Lifecycle and introspection
// --------------------------------------------------------------------------

// Close resolves every pending invocation with a ConnectionLost response and
// closes all channels. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	entries := e.pending.takeAll()
	if len(entries) > 0 {
		Logger.Infof("Closing engine with %d pending invocations", len(entries))
	}
	e.forceResolve(entries)

	var errs []error
	for _, ch := range e.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.channels = nil
	e.liveConn.Store(0)
	return errors.Join(errs...)
}

// Outstanding returns the number of pending invocations
func (e *Engine) Outstanding() int {
	return e.pending.len()
}

// Connections returns the number of live channels
func (e *Engine) Connections() int {
	return int(e.liveConn.Load())
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Invocations:      e.metrics.invocations.Get(),
		Responses:        e.metrics.responses(),
		ConnectionLost:   e.metrics.connectionLost.Get(),
		CallbackFaults:   e.metrics.callbackFaults.Get(),
		Rejected:         e.metrics.rejected.Get(),
		UnknownResponses: e.metrics.unknownResponses.Get(),
		ChannelFailures:  e.metrics.channelFailures.Get(),
		Backpressure:     e.metrics.backpressure.Get(),
		Pending:          e.Outstanding(),
		Connections:      e.Connections(),
	}
}

// WriteMetrics writes the engine metrics in Prometheus text format
func (e *Engine) WriteMetrics(w io.Writer) {
	e.metrics.writePrometheus(w)
}
