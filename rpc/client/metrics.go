package client

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// engineMetrics holds the counters of one engine. Each engine owns its own
// metrics.Set so several engines can live in one process.
type engineMetrics struct {
	set *metrics.Set

	invocations      *metrics.Counter
	rejected         *metrics.Counter
	connectionLost   *metrics.Counter
	callbackFaults   *metrics.Counter
	unknownResponses *metrics.Counter
	channelFailures  *metrics.Counter
	backpressure     *metrics.Counter
	bytesQueued      *metrics.Counter
	bytesReceived    *metrics.Counter
	roundTrip        *metrics.Histogram
}

// EngineStats is a snapshot of the engine counters
type EngineStats struct {
	Invocations      uint64 `json:"invocations"`
	Responses        uint64 `json:"responses"`
	ConnectionLost   uint64 `json:"connection_lost"`
	CallbackFaults   uint64 `json:"callback_faults"`
	Rejected         uint64 `json:"rejected"`
	UnknownResponses uint64 `json:"unknown_responses"`
	ChannelFailures  uint64 `json:"channel_failures"`
	Backpressure     uint64 `json:"backpressure_events"`
	Pending          int    `json:"pending"`
	Connections      int    `json:"connections"`
}

func newEngineMetrics(pending func() int, connections func() int) *engineMetrics {
	set := metrics.NewSet()
	m := &engineMetrics{
		set:              set,
		invocations:      set.NewCounter(`voltc_invocations_total`),
		rejected:         set.NewCounter(`voltc_invocations_rejected_total`),
		connectionLost:   set.NewCounter(`voltc_connection_lost_responses_total`),
		callbackFaults:   set.NewCounter(`voltc_callback_faults_total`),
		unknownResponses: set.NewCounter(`voltc_unknown_responses_total`),
		channelFailures:  set.NewCounter(`voltc_channel_failures_total`),
		backpressure:     set.NewCounter(`voltc_backpressure_events_total`),
		bytesQueued:      set.NewCounter(`voltc_bytes_queued_total`),
		bytesReceived:    set.NewCounter(`voltc_bytes_received_total`),
		roundTrip:        set.NewHistogram(`voltc_client_round_trip_seconds`),
	}
	set.NewGauge(`voltc_pending_invocations`, func() float64 {
		return float64(pending())
	})
	set.NewGauge(`voltc_connections`, func() float64 {
		return float64(connections())
	})
	return m
}

// observeResponse records a dispatched response
func (m *engineMetrics) observeResponse(resp *common.Response) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`voltc_responses_total{status=%q}`, resp.Status.String())).Inc()
	if resp.Status == common.StatusConnectionLost {
		m.connectionLost.Inc()
		return
	}
	m.roundTrip.Update(resp.ClientRoundTrip.Seconds())
}

func (m *engineMetrics) observeQueued(frame []byte) {
	m.invocations.Inc()
	m.bytesQueued.Add(len(frame))
}

// responses sums the per status response counters
func (m *engineMetrics) responses() uint64 {
	var total uint64
	for _, status := range []common.StatusCode{
		common.StatusSuccess,
		common.StatusUserAbort,
		common.StatusGracefulFailure,
		common.StatusUnexpectedFailure,
		common.StatusConnectionLost,
	} {
		total += m.set.GetOrCreateCounter(fmt.Sprintf(`voltc_responses_total{status=%q}`, status.String())).Get()
	}
	return total
}

func (m *engineMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// since returns the elapsed time, never negative
func since(start time.Time) time.Duration {
	if d := time.Since(start); d > 0 {
		return d
	}
	return 0
}
