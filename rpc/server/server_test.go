package server

import (
	"bytes"
	"github.com/ValentinKolb/voltc/rpc/client"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/transport/unix"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// startServer starts a procedure server on a unix socket in a temp dir
func startServer(t *testing.T, config common.ServerConfig) (*ProcedureServer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voltc.sock")
	config.Transport.Endpoint = path

	s := NewProcedureServer(config, unix.NewUnixServerTransport())
	require.NoError(t, s.Bind())
	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func clientConfig(endpoint string) common.ClientConfig {
	config := common.DefaultClientConfig()
	config.TimeoutSecond = 2
	config.Transport.Endpoints = []string{endpoint}
	config.Engine.PollInterval = 2 * time.Millisecond
	return config
}

// connect creates an engine with one connection to endpoint
func connect(t *testing.T, endpoint string, creds transport.Credentials, opts ...client.Option) *client.Engine {
	t.Helper()
	e := client.NewEngine(clientConfig(endpoint), opts...)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.CreateConnection(endpoint, creds))
	return e
}

func procedure(t *testing.T, name string, params ...any) *wire.Procedure {
	t.Helper()
	p := wire.NewProcedure(name, len(params))
	require.NoError(t, p.BindAll(params...))
	return p
}

type lostObserver struct {
	client.NoopObserver
	remaining []int
}

func (o *lostObserver) OnConnectionLost(_ string, remaining int, _ error) {
	o.remaining = append(o.remaining, remaining)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestInvokeProcedures(t *testing.T) {
	_, endpoint := startServer(t, common.DefaultServerConfig())
	e := connect(t, endpoint, transport.Credentials{})

	tests := []struct {
		name      string
		procedure string
		params    []any
		status    common.StatusCode
		check     func(t *testing.T, resp *common.Response)
	}{
		{
			name:      "ping",
			procedure: "@Ping",
			status:    common.StatusSuccess,
			check: func(t *testing.T, resp *common.Response) {
				assert.Empty(t, resp.Tables)
				assert.Equal(t, common.AppStatusUnset, resp.AppStatus)
			},
		},
		{
			name:      "echo",
			procedure: "Echo",
			params:    []any{int64(7), "seven", nil, []byte{0x07}},
			status:    common.StatusSuccess,
			check: func(t *testing.T, resp *common.Response) {
				require.Len(t, resp.Tables, 1)
				table := resp.Tables[0]
				require.Equal(t, 1, table.RowCount())
				assert.Equal(t, []any{int64(7), "seven", nil, []byte{0x07}}, table.Rows[0])
				assert.Equal(t, "p1", table.Columns[1].Name)
				assert.Equal(t, common.TypeString, table.Columns[2].Type)
			},
		},
		{
			name:      "sleep",
			procedure: "Sleep",
			params:    []any{int64(5)},
			status:    common.StatusSuccess,
			check: func(t *testing.T, resp *common.Response) {
				assert.GreaterOrEqual(t, resp.ClientRoundTrip, 5*time.Millisecond)
			},
		},
		{
			name:      "sleep with a bad duration",
			procedure: "Sleep",
			params:    []any{"long"},
			status:    common.StatusGracefulFailure,
		},
		{
			name:      "unknown procedure",
			procedure: "DoesNotExist",
			status:    common.StatusUnexpectedFailure,
			check: func(t *testing.T, resp *common.Response) {
				assert.Contains(t, resp.StatusString, "DoesNotExist was not found")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Invoke(procedure(t, tt.procedure, tt.params...))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Status, resp.StatusString)
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestKeyValueProcedures(t *testing.T) {
	_, endpoint := startServer(t, common.DefaultServerConfig())
	e := connect(t, endpoint, transport.Credentials{})

	resp, err := e.Invoke(procedure(t, "Put", "greeting", "hello"))
	require.NoError(t, err)
	require.True(t, resp.Success(), resp.StatusString)

	resp, err = e.Invoke(procedure(t, "Get", "greeting"))
	require.NoError(t, err)
	require.Len(t, resp.Tables, 1)
	require.Equal(t, 1, resp.Tables[0].RowCount())
	assert.Equal(t, []byte("hello"), resp.Tables[0].Rows[0][0])

	resp, err = e.Invoke(procedure(t, "Delete", "greeting"))
	require.NoError(t, err)
	assert.True(t, resp.Success())

	resp, err = e.Invoke(procedure(t, "Get", "greeting"))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Tables[0].RowCount())

	resp, err = e.Invoke(procedure(t, "Delete", "greeting"))
	require.NoError(t, err)
	assert.Equal(t, common.StatusUserAbort, resp.Status)
	assert.Equal(t, int8(1), resp.AppStatus)
}

func TestAsyncInvocationsDrain(t *testing.T) {
	_, endpoint := startServer(t, common.DefaultServerConfig())
	e := connect(t, endpoint, transport.Credentials{})

	const n = 200
	calls := map[int64]int{}
	var order []int64
	for i := 0; i < n; i++ {
		_, err := e.InvokeAsync(procedure(t, "Echo", int64(i)), client.CallbackFunc(func(resp *common.Response) (bool, error) {
			calls[resp.CorrelationID]++
			order = append(order, resp.CorrelationID)
			assert.True(t, resp.Success())
			return false, nil
		}))
		require.NoError(t, err)
	}

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Len(t, calls, n)
	for id, count := range calls {
		assert.Equal(t, 1, count, "callback of %d", id)
	}

	// one worker per connection answers in request order
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
	assert.Equal(t, uint64(n), e.Stats().Responses)
}

func TestServerCloseResolvesPending(t *testing.T) {
	s, endpoint := startServer(t, common.DefaultServerConfig())
	observer := &lostObserver{}
	e := connect(t, endpoint, transport.Credentials{}, client.WithObserver(observer))

	var statuses []common.StatusCode
	for i := 0; i < 3; i++ {
		_, err := e.InvokeAsync(procedure(t, "Sleep", int64(500)), client.CallbackFunc(func(resp *common.Response) (bool, error) {
			statuses = append(statuses, resp.Status)
			return false, nil
		}))
		require.NoError(t, err)
	}
	require.NoError(t, e.RunOnce())
	require.NoError(t, s.Close())

	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, []common.StatusCode{
		common.StatusConnectionLost, common.StatusConnectionLost, common.StatusConnectionLost,
	}, statuses)
	assert.Equal(t, []int{0}, observer.remaining)
	assert.Equal(t, 0, e.Connections())
}

func TestLoginRequiresCredentials(t *testing.T) {
	config := common.DefaultServerConfig()
	config.Username = "admin"
	config.Password = "secret"
	s, endpoint := startServer(t, config)

	e := client.NewEngine(clientConfig(endpoint))
	defer e.Close()

	err := e.CreateConnection(endpoint, transport.Credentials{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	err = e.CreateConnection(endpoint, transport.Credentials{Username: "guest", Password: "secret"})
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	assert.Equal(t, 0, e.Connections())

	require.NoError(t, e.CreateConnection(endpoint, transport.Credentials{Username: "admin", Password: "secret"}))
	resp, err := e.Invoke(wire.NewProcedure("@Ping", 0))
	require.NoError(t, err)
	assert.True(t, resp.Success())

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "voltc_server_login_failures_total 2")
	assert.Contains(t, buf.String(), "voltc_server_logins_total 1")
}

func TestConnectFromConfig(t *testing.T) {
	_, endpoint := startServer(t, common.DefaultServerConfig())

	config := clientConfig("unix://" + endpoint)
	config.Transport.ConnectionsPerEndpoint = 3
	e := client.NewEngine(config)
	defer e.Close()

	require.NoError(t, e.Connect())
	assert.Equal(t, 3, e.Connections())

	for i := 0; i < 6; i++ {
		_, err := e.InvokeAsync(wire.NewProcedure("@Ping", 0), nil)
		require.NoError(t, err)
	}
	drained, err := e.Drain()
	require.NoError(t, err)
	assert.True(t, drained)
}

func TestProcedureFaultsBecomeUnexpectedFailures(t *testing.T) {
	s, endpoint := startServer(t, common.DefaultServerConfig())
	s.Register("Panic", func([]any) *common.Response { panic("broken") })
	s.Register("Lost", func([]any) *common.Response {
		return common.NewResponse(0, common.StatusConnectionLost)
	})
	s.Register("Nothing", func([]any) *common.Response { return nil })
	e := connect(t, endpoint, transport.Credentials{})

	resp, err := e.Invoke(wire.NewProcedure("Panic", 0))
	require.NoError(t, err)
	assert.Equal(t, common.StatusUnexpectedFailure, resp.Status)
	assert.Contains(t, resp.StatusString, "broken")

	resp, err = e.Invoke(wire.NewProcedure("Lost", 0))
	require.NoError(t, err)
	assert.Equal(t, common.StatusUnexpectedFailure, resp.Status)

	resp, err = e.Invoke(wire.NewProcedure("Nothing", 0))
	require.NoError(t, err)
	assert.True(t, resp.Success())

	// the connection survived all of it
	assert.Equal(t, 1, e.Connections())
}

func TestLatencyIsApplied(t *testing.T) {
	config := common.DefaultServerConfig()
	config.Latency = 20 * time.Millisecond
	s, endpoint := startServer(t, config)
	e := connect(t, endpoint, transport.Credentials{})

	resp, err := e.Invoke(wire.NewProcedure("@Ping", 0))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.ClientRoundTrip, 20*time.Millisecond)
	assert.GreaterOrEqual(t, resp.ClusterRoundTrip, int32(20))

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), `voltc_server_invocations_total{procedure="@Ping",status="success"} 1`)
}
