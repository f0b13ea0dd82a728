package client

import "github.com/ValentinKolb/voltc/rpc/common"

// ICallback receives the response of an asynchronous invocation. It is
// called exactly once, from inside RunOnce, Run, Drain, Invoke, a blocking
// InvokeAsync or Close, never from InvokeAsync before it returned.
//
// Returning stop=true asks the running Run or Drain loop to return. A
// returned error (or a panic) is a callback fault: it is reported to the
// IStatusObserver and does not affect other invocations.
type ICallback interface {
	Callback(resp *common.Response) (stop bool, err error)
}

// CallbackFunc adapts a function to ICallback
type CallbackFunc func(resp *common.Response) (stop bool, err error)

func (f CallbackFunc) Callback(resp *common.Response) (bool, error) {
	return f(resp)
}

// IStatusObserver is notified of engine state changes. All methods are
// called on the goroutine driving the engine.
type IStatusObserver interface {
	// OnBackpressure is called when every channel became backpressured
	// (active=true) and when at least one channel is clear again
	// (active=false). On activation, returning true lets the blocked
	// invocation proceed without waiting: it is enqueued anyway, or fails
	// with common.ErrBackpressureRejected if the engine is configured to
	// reject. The return value is ignored for active=false.
	OnBackpressure(active bool) (allowEnqueue bool)

	// OnConnectionLost is called after all invocations of the failed channel
	// were resolved. remaining is the number of live channels left.
	OnConnectionLost(endpoint string, remaining int, cause error)

	// OnCallbackFault is called when a callback returned an error or panicked
	OnCallbackFault(err error, resp *common.Response)
}

// NoopObserver ignores all notifications and never overrides blocking
type NoopObserver struct{}

func (NoopObserver) OnBackpressure(bool) bool { return false }
func (NoopObserver) OnConnectionLost(string, int, error) {}
func (NoopObserver) OnCallbackFault(error, *common.Response) {}
