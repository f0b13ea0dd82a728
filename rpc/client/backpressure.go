package client

import "github.com/ValentinKolb/voltc/rpc/common"

// GateState is the verdict of the BackpressureGate for one channel
type GateState int

const (
	GateClear GateState = iota
	GateBackpressured
)

func (s GateState) String() string {
	if s == GateBackpressured {
		return "backpressured"
	}
	return "clear"
}

// Depth is the load of one channel as seen by the gate
type Depth struct {
	// QueuedBytes is the number of bytes waiting to be written
	QueuedBytes int
	// Outstanding is the number of requests sent and not yet answered
	Outstanding int
}

// BackpressureGate is the stateless policy deciding whether a channel may
// accept more work. A threshold of 0 disables that check.
type BackpressureGate struct {
	// MaxQueuedBytes: backpressured while more bytes than this are queued
	MaxQueuedBytes int
	// MaxOutstanding: backpressured while more requests than this are unanswered
	MaxOutstanding int
}

// NewBackpressureGate creates a gate with the thresholds of conf
func NewBackpressureGate(conf common.EngineConf) BackpressureGate {
	return BackpressureGate{
		MaxQueuedBytes: conf.MaxQueuedBytes,
		MaxOutstanding: conf.MaxOutstanding,
	}
}

// Check returns the state for a channel with the given depth
func (g BackpressureGate) Check(d Depth) GateState {
	if g.MaxQueuedBytes > 0 && d.QueuedBytes > g.MaxQueuedBytes {
		return GateBackpressured
	}
	if g.MaxOutstanding > 0 && d.Outstanding > g.MaxOutstanding {
		return GateBackpressured
	}
	return GateClear
}
