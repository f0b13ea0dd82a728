package client

import (
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestBackpressureGate(t *testing.T) {
	tests := []struct {
		name  string
		gate  BackpressureGate
		depth Depth
		want  GateState
	}{
		{"idle", BackpressureGate{MaxQueuedBytes: 100, MaxOutstanding: 2}, Depth{}, GateClear},
		{"bytes at limit", BackpressureGate{MaxQueuedBytes: 100}, Depth{QueuedBytes: 100}, GateClear},
		{"bytes over limit", BackpressureGate{MaxQueuedBytes: 100}, Depth{QueuedBytes: 101}, GateBackpressured},
		{"outstanding below limit", BackpressureGate{MaxOutstanding: 2}, Depth{Outstanding: 1}, GateClear},
		{"outstanding at limit", BackpressureGate{MaxOutstanding: 2}, Depth{Outstanding: 2}, GateClear},
		{"outstanding over limit", BackpressureGate{MaxOutstanding: 2}, Depth{Outstanding: 3}, GateBackpressured},
		{"disabled", BackpressureGate{}, Depth{QueuedBytes: 1 << 30, Outstanding: 1 << 20}, GateClear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.gate.Check(tt.depth))
		})
	}
}

func TestNewBackpressureGate(t *testing.T) {
	gate := NewBackpressureGate(common.EngineConf{MaxQueuedBytes: 10, MaxOutstanding: 3})
	assert.Equal(t, BackpressureGate{MaxQueuedBytes: 10, MaxOutstanding: 3}, gate)
	assert.Equal(t, "backpressured", GateBackpressured.String())
	assert.Equal(t, "clear", GateClear.String())
}
