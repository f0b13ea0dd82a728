package server

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"time"
)

type serverMetrics struct {
	set           *metrics.Set
	logins        *metrics.Counter
	loginFailures *metrics.Counter
	malformed     *metrics.Counter
}

func newServerMetrics() *serverMetrics {
	set := metrics.NewSet()
	return &serverMetrics{
		set:           set,
		logins:        set.NewCounter(`voltc_server_logins_total`),
		loginFailures: set.NewCounter(`voltc_server_login_failures_total`),
		malformed:     set.NewCounter(`voltc_server_malformed_requests_total`),
	}
}

// observe records one executed invocation
func (m *serverMetrics) observe(procedure string, resp *common.Response, took time.Duration) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`voltc_server_invocations_total{procedure=%q,status=%q}`, procedure, resp.Status.String())).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`voltc_server_procedure_seconds{procedure=%q}`, procedure)).Update(took.Seconds())
}
