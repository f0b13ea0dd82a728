package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/transport/base"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"slices"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// pipeConnector creates a net.Pipe per connection and hands the server end
// to a scriptedPeer
type pipeConnector struct {
	peers chan *scriptedPeer
}

func newPipeConnector() *pipeConnector {
	return &pipeConnector{peers: make(chan *scriptedPeer, 16)}
}

func (c *pipeConnector) Connect(string, time.Duration) (net.Conn, error) {
	client, server := net.Pipe()
	c.peers <- newScriptedPeer(server)
	return client, nil
}

func (c *pipeConnector) GetName() string { return "pipe" }

func (c *pipeConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// scriptedPeer plays the server side of one connection
type scriptedPeer struct {
	conn     net.Conn
	requests chan *wire.Request
}

func newScriptedPeer(conn net.Conn) *scriptedPeer {
	p := &scriptedPeer{conn: conn, requests: make(chan *wire.Request, 1024)}
	go p.readLoop()
	return p
}

func (p *scriptedPeer) readLoop() {
	defer close(p.requests)
	header := make([]byte, wire.FrameHeaderSize)
	for {
		if _, err := io.ReadFull(p.conn, header); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint32(header))
		if _, err := io.ReadFull(p.conn, body); err != nil {
			return
		}
		req, err := wire.DecodeRequest(body, common.ProtocolVersion)
		if err != nil {
			return
		}
		p.requests <- req
	}
}

// await returns the next request, nil if none arrives in time
func (p *scriptedPeer) await() *wire.Request {
	select {
	case req := <-p.requests:
		return req
	case <-time.After(2 * time.Second):
		return nil
	}
}

// next waits for the next request and fails the test if none arrives
func (p *scriptedPeer) next(t *testing.T) *wire.Request {
	t.Helper()
	req := p.await()
	require.NotNil(t, req, "no request received")
	return req
}

// send writes a response with the given status
func (p *scriptedPeer) send(id int64, status common.StatusCode) error {
	frame, err := wire.EncodeResponse(common.ProtocolVersion, common.NewResponse(id, status), wire.ResponseOptions{})
	if err != nil {
		return err
	}
	_, err = p.conn.Write(frame)
	return err
}

// answer waits for n requests and replies to each with success as it arrives
func (p *scriptedPeer) answer(n int) {
	for i := 0; i < n; i++ {
		req := p.await()
		if req == nil || p.send(req.CorrelationID, common.StatusSuccess) != nil {
			return
		}
	}
}

// answerBatch waits until n requests arrived, then replies in arrival order
func (p *scriptedPeer) answerBatch(n int) {
	var reqs []*wire.Request
	for i := 0; i < n; i++ {
		req := p.await()
		if req == nil {
			return
		}
		reqs = append(reqs, req)
	}
	for _, req := range reqs {
		if p.send(req.CorrelationID, common.StatusSuccess) != nil {
			return
		}
	}
}

// recordingObserver records every notification
type recordingObserver struct {
	allow        bool
	backpressure []bool
	lost         []string
	lostCauses   []error
	faults       []error
}

func (o *recordingObserver) OnBackpressure(active bool) bool {
	o.backpressure = append(o.backpressure, active)
	return o.allow
}

func (o *recordingObserver) OnConnectionLost(endpoint string, remaining int, cause error) {
	o.lost = append(o.lost, endpoint)
	o.lostCauses = append(o.lostCauses, cause)
}

func (o *recordingObserver) OnCallbackFault(err error, _ *common.Response) {
	o.faults = append(o.faults, err)
}

func testConfig() common.ClientConfig {
	config := common.DefaultClientConfig()
	config.TimeoutSecond = 2
	config.Engine.PollInterval = 2 * time.Millisecond
	config.Engine.IOSlice = 5 * time.Millisecond
	return config
}

// newTestEngine creates an engine with n scripted connections
func newTestEngine(t *testing.T, config common.ClientConfig, n int, opts ...Option) (*Engine, []*scriptedPeer) {
	connector := newPipeConnector()
	opts = append([]Option{WithConnector(connector), WithHandshaker(base.NoHandshake())}, opts...)
	e := NewEngine(config, opts...)
	t.Cleanup(func() { _ = e.Close() })

	peers := make([]*scriptedPeer, n)
	for i := range peers {
		require.NoError(t, e.CreateConnection("pipe", transport.Credentials{}))
		peers[i] = <-connector.peers
	}
	return e, peers
}

// flushAll pumps until every queued byte has been written
func flushAll(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, e.RunOnce())
		pending := false
		for _, ch := range e.channels {
			pending = pending || ch.HasPendingWrites()
		}
		if !pending {
			return
		}
		require.True(t, time.Now().Before(deadline), "writes did not complete")
	}
}

func ping() *wire.Procedure {
	return wire.NewProcedure("@Ping", 0)
}

// collector records the responses its callbacks receive
type collector struct {
	responses []*common.Response
	calls     map[int64]int
}

func newCollector() *collector {
	return &collector{calls: map[int64]int{}}
}

func (c *collector) callback() ICallback {
	return CallbackFunc(func(resp *common.Response) (bool, error) {
		c.responses = append(c.responses, resp)
		c.calls[resp.CorrelationID]++
		return false, nil
	})
}

func (c *collector) ids() []int64 {
	ids := make([]int64, len(c.responses))
	for i, r := range c.responses {
		ids[i] = r.CorrelationID
	}
	return ids
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestCallbacksFollowArrivalOrder(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)
	c := newCollector()

	var ids []int64
	for _, name := range []string{"A", "B", "C"} {
		id, err := e.InvokeAsync(wire.NewProcedure(name, 0), c.callback())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 3, e.Outstanding())

	go peers[0].answerBatch(3)

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, ids, c.ids())
	assert.Equal(t, 0, e.Outstanding())
	for _, resp := range c.responses {
		assert.True(t, resp.Success())
		assert.Equal(t, common.AppStatusUnset, resp.AppStatus)
	}
}

func TestConnectionLostResolvesEveryPendingOnce(t *testing.T) {
	observer := &recordingObserver{}
	e, peers := newTestEngine(t, testConfig(), 1, WithObserver(observer))
	c := newCollector()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := e.InvokeAsync(ping(), c.callback())
		require.NoError(t, err)
	}

	// let some requests reach the peer, then kill the connection
	require.NoError(t, e.RunOnce())
	require.NoError(t, peers[0].conn.Close())

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)

	require.Len(t, c.responses, n)
	for id := int64(1); id <= n; id++ {
		assert.Equal(t, 1, c.calls[id], "callback of %d", id)
	}
	for _, resp := range c.responses {
		assert.Equal(t, common.StatusConnectionLost, resp.Status)
		assert.Equal(t, common.ConnectionLostMessage, resp.StatusString)
		assert.Empty(t, resp.Tables)
	}
	assert.True(t, slices.IsSorted(c.ids()), "force resolution must follow correlation order")

	assert.Equal(t, []string{"pipe"}, observer.lost)
	assert.Equal(t, 0, e.Connections())
	assert.Equal(t, uint64(n), e.Stats().ConnectionLost)

	_, err = e.InvokeAsync(ping(), c.callback())
	assert.ErrorIs(t, err, common.ErrNoConnections)
	assert.ErrorIs(t, e.RunOnce(), common.ErrNoConnections)
	assert.ErrorIs(t, e.Run(), common.ErrNoConnections)
}

func TestBackpressureBlocksUntilDepthDrops(t *testing.T) {
	config := testConfig()
	config.Engine.MaxOutstanding = 1
	config.Engine.MaxQueuedBytes = 0
	observer := &recordingObserver{}
	e, peers := newTestEngine(t, config, 1, WithObserver(observer))

	aDone := false
	idA, err := e.InvokeAsync(ping(), CallbackFunc(func(*common.Response) (bool, error) {
		aDone = true
		return false, nil
	}))
	require.NoError(t, err)
	_, err = e.InvokeAsync(ping(), newCollector().callback())
	require.NoError(t, err)

	// answer A only after both requests arrived and a short delay
	go func() {
		first := peers[0].await()
		if first == nil || peers[0].await() == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
		_ = peers[0].send(first.CorrelationID, common.StatusSuccess)
	}()

	start := time.Now()
	_, err = e.InvokeAsync(ping(), newCollector().callback())
	require.NoError(t, err)

	assert.True(t, aDone, "blocking invoke returned before depth dropped")
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, int64(1), idA)
	assert.Equal(t, []bool{true, false}, observer.backpressure)
	assert.Equal(t, 2, e.Outstanding())
}

func TestObserverOverridesBlocking(t *testing.T) {
	config := testConfig()
	config.Engine.MaxOutstanding = 1

	t.Run("Enqueue", func(t *testing.T) {
		observer := &recordingObserver{allow: true}
		e, _ := newTestEngine(t, config, 1, WithObserver(observer))

		for i := 0; i < 3; i++ {
			_, err := e.InvokeAsync(ping(), nil)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, e.Outstanding())
		assert.Equal(t, []bool{true}, observer.backpressure)
	})

	t.Run("Reject", func(t *testing.T) {
		config := config
		config.Engine.RejectOnBackpressure = true
		observer := &recordingObserver{allow: true}
		e, _ := newTestEngine(t, config, 1, WithObserver(observer))

		for i := 0; i < 2; i++ {
			_, err := e.InvokeAsync(ping(), nil)
			require.NoError(t, err)
		}
		_, err := e.InvokeAsync(ping(), nil)
		assert.ErrorIs(t, err, common.ErrBackpressureRejected)
		assert.Equal(t, 2, e.Outstanding())
		assert.Equal(t, uint64(1), e.Stats().Rejected)
	})
}

func TestCallbackFaultsDoNotStopThePump(t *testing.T) {
	observer := &recordingObserver{}
	e, peers := newTestEngine(t, testConfig(), 1, WithObserver(observer))

	failing := CallbackFunc(func(*common.Response) (bool, error) {
		return false, errors.New("callback failed")
	})
	panicking := CallbackFunc(func(*common.Response) (bool, error) {
		panic("boom")
	})
	c := newCollector()

	for _, cb := range []ICallback{failing, panicking, c.callback()} {
		_, err := e.InvokeAsync(ping(), cb)
		require.NoError(t, err)
	}

	go peers[0].answer(3)

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Len(t, c.responses, 1)
	require.Len(t, observer.faults, 2)
	assert.ErrorContains(t, observer.faults[1], "boom")
	assert.Equal(t, uint64(2), e.Stats().CallbackFaults)
}

func TestInvokeWaitsForItsResponse(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)
	c := newCollector()

	earlier, err := e.InvokeAsync(ping(), c.callback())
	require.NoError(t, err)

	go func() {
		for i := 0; i < 2; i++ {
			req := peers[0].await()
			if req == nil {
				return
			}
			status := common.StatusSuccess
			if req.Procedure == "Fail" {
				status = common.StatusGracefulFailure
			}
			_ = peers[0].send(req.CorrelationID, status)
		}
	}()

	resp, err := e.Invoke(wire.NewProcedure("Fail", 0))
	require.NoError(t, err)
	assert.Equal(t, common.StatusGracefulFailure, resp.Status)
	assert.Equal(t, earlier+1, resp.CorrelationID)
	assert.Equal(t, []int64{earlier}, c.ids(), "earlier callback must fire while waiting")
	assert.Positive(t, resp.ClientRoundTrip)
}

func TestPreconditionErrors(t *testing.T) {
	e := NewEngine(testConfig())
	_, err := e.InvokeAsync(ping(), nil)
	assert.ErrorIs(t, err, common.ErrNoConnections)
	_, err = e.Invoke(ping())
	assert.ErrorIs(t, err, common.ErrNoConnections)
	assert.ErrorIs(t, e.RunOnce(), common.ErrNoConnections)

	e, _ = newTestEngine(t, testConfig(), 1)
	_, err = e.InvokeAsync(wire.NewProcedure("Insert", 2), nil)
	assert.ErrorIs(t, err, common.ErrIncompleteParameters)
	assert.Equal(t, 0, e.Outstanding())

	// the failed call did not consume a correlation id
	id, err := e.InvokeAsync(ping(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestRunStopsOnRequest(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := e.InvokeAsync(ping(), CallbackFunc(func(*common.Response) (bool, error) {
			calls++
			return true, nil
		}))
		require.NoError(t, err)
	}

	go peers[0].answer(1)

	require.NoError(t, e.Run())
	assert.Equal(t, 1, calls)

	// an interrupted drain reports false, the next one finishes
	go peers[0].answer(1)
	drained, err := e.Drain()
	require.NoError(t, err)
	assert.False(t, drained)
	assert.Equal(t, 2, calls)

	drained, err = e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
}

func TestRunOnceDoesNotWait(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), 1)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, e.RunOnce())
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestPeerWriteWaitsForPump(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)
	c := newCollector()

	id, err := e.InvokeAsync(ping(), c.callback())
	require.NoError(t, err)
	flushAll(t, e)
	req := peers[0].next(t)

	written := make(chan error, 1)
	go func() { written <- peers[0].send(req.CorrelationID, common.StatusSuccess) }()

	// nothing reads the socket while the engine is not pumped
	select {
	case <-written:
		t.Fatal("peer write completed without a pump call")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, c.responses)
	assert.Equal(t, 1, e.Outstanding())

	deadline := time.Now().Add(2 * time.Second)
	for len(c.responses) == 0 {
		require.NoError(t, e.RunOnce())
		require.True(t, time.Now().Before(deadline), "response was not dispatched")
	}
	require.NoError(t, <-written)
	assert.Equal(t, []int64{id}, c.ids())
	assert.Equal(t, 0, e.Outstanding())
}

func TestCallbackMayInvokeAgain(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)
	c := newCollector()

	_, err := e.InvokeAsync(ping(), CallbackFunc(func(resp *common.Response) (bool, error) {
		_, err := e.InvokeAsync(ping(), c.callback())
		return false, err
	}))
	require.NoError(t, err)

	go peers[0].answer(2)

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, []int64{2}, c.ids())
}

func TestCloseResolvesPending(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), 2)
	c := newCollector()

	for i := 0; i < 3; i++ {
		_, err := e.InvokeAsync(ping(), c.callback())
		require.NoError(t, err)
	}

	require.NoError(t, e.Close())
	assert.Equal(t, []int64{1, 2, 3}, c.ids())
	for _, resp := range c.responses {
		assert.Equal(t, common.StatusConnectionLost, resp.Status)
	}
	assert.Equal(t, 0, e.Connections())

	_, err := e.InvokeAsync(ping(), c.callback())
	assert.ErrorIs(t, err, common.ErrEngineClosed)
	assert.NoError(t, e.Close())
}

func TestMalformedFrameFailsChannel(t *testing.T) {
	observer := &recordingObserver{}
	e, peers := newTestEngine(t, testConfig(), 1, WithObserver(observer))
	c := newCollector()

	_, err := e.InvokeAsync(ping(), c.callback())
	require.NoError(t, err)

	go func() {
		if peers[0].await() != nil {
			_, _ = peers[0].conn.Write([]byte{0, 0, 0, 3, 0x7F, 0, 0}) // wrong version
		}
	}()

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	require.Len(t, c.responses, 1)
	assert.Equal(t, common.StatusConnectionLost, c.responses[0].Status)
	require.Len(t, observer.lostCauses, 1)
	assert.ErrorIs(t, observer.lostCauses[0], common.ErrUnsupportedVersion)
}

func TestUnknownCorrelationIDIsIgnored(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 1)
	c := newCollector()

	_, err := e.InvokeAsync(ping(), c.callback())
	require.NoError(t, err)

	go func() {
		if req := peers[0].await(); req != nil {
			_ = peers[0].send(999, common.StatusSuccess)
			_ = peers[0].send(req.CorrelationID, common.StatusSuccess)
		}
	}()

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, []int64{1}, c.ids())
	assert.Equal(t, uint64(1), e.Stats().UnknownResponses)
	assert.Equal(t, 1, e.Connections())
}

func TestLeastOutstandingChannelIsChosen(t *testing.T) {
	e, peers := newTestEngine(t, testConfig(), 2)

	for i := 0; i < 4; i++ {
		_, err := e.InvokeAsync(ping(), nil)
		require.NoError(t, err)
	}
	flushAll(t, e)

	for _, peer := range peers {
		peer.next(t)
		peer.next(t)
	}
	for _, peer := range peers {
		select {
		case req := <-peer.requests:
			t.Fatalf("unexpected third request %d on one channel", req.CorrelationID)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWriteMetrics(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), 1)
	_, err := e.InvokeAsync(ping(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	e.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "voltc_invocations_total 1")
	assert.Contains(t, buf.String(), "voltc_pending_invocations 1")
	assert.Contains(t, buf.String(), "voltc_connections 1")
}
