// Package client implements the asynchronous invocation engine.
//
// An Engine holds any number of channels (one per server connection) and
// correlates each request with its response by a client assigned
// correlation id. Invocations are queued with InvokeAsync and resolved by
// calling their ICallback exactly once, either with the server response or
// with a synthesized ConnectionLost response when the channel fails first.
//
// Key Components:
//
//   - Engine: channel selection, the pending table and the reactor. All
//     progress happens while the caller is inside RunOnce, Run, Drain, Invoke
//     or a blocking InvokeAsync.
//
//   - BackpressureGate: the per channel policy deciding whether a channel
//     may accept more work (queued bytes and outstanding requests).
//
//   - IStatusObserver: receives backpressure transitions, lost connections
//     and callback faults. It can let a blocked invocation proceed.
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	config.Transport.Endpoints = []string{"localhost:21212"}
//
//	e := client.NewEngine(config)
//	if err := e.Connect(); err != nil {
//	  log.Fatal(err)
//	}
//	defer e.Close()
//
//	proc := wire.NewProcedure("Insert", 2)
//	_ = proc.BindAll(int64(1), "hello")
//
//	_, err := e.InvokeAsync(proc, client.CallbackFunc(func(resp *common.Response) (bool, error) {
//	  fmt.Println(resp.Status, resp.StatusString)
//	  return false, nil
//	}))
//	...
//	e.Drain()
//
// Thread Safety:
//
//	An Engine must be driven by one goroutine at a time. Callbacks and
//	observer methods run on that goroutine. Outstanding, Connections, Stats
//	and WriteMetrics are safe to call from any goroutine.
package client
