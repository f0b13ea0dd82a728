package perf

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"github.com/ValentinKolb/voltc/cmd/util"
	"github.com/ValentinKolb/voltc/rpc/client"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// PerfCmd runs a load test against a server
	PerfCmd = &cobra.Command{
		Use:   "perf [procedure] [params...]",
		Short: "Performance testing tool for procedure servers",
		Long: `Invoke a procedure (default @Ping) as fast as the engine allows and report
throughput and latency. Every worker drives its own engine.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfWorkers     = 4
	perfDuration    = 10 * time.Second
	perfCount       = 0
	perfMetricsAddr = ""
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupClientFlags(PerfCmd)

	key := "workers"
	PerfCmd.Flags().Int(key, perfWorkers, util.WrapString("Number of engines invoking in parallel"))
	key = "duration"
	PerfCmd.Flags().Duration(key, perfDuration, util.WrapString("How long to run the test"))
	key = "count"
	PerfCmd.Flags().Int(key, perfCount, util.WrapString("Invocations per worker; overrides duration if set"))
	key = "metrics-addr"
	PerfCmd.Flags().String(key, "", util.WrapString("Serve Prometheus metrics of the running test on this address (e.g. :9100)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save the results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	perfWorkers = max(1, viper.GetInt("workers"))
	perfDuration = viper.GetDuration("duration")
	perfCount = viper.GetInt("count")
	perfMetricsAddr = viper.GetString("metrics-addr")

	if perfCount <= 0 && perfDuration <= 0 {
		return fmt.Errorf("either --count or --duration must be positive")
	}
	return nil
}

// result holds the measurements of one run
type result struct {
	latency  gometrics.Histogram // microseconds
	rate     gometrics.Meter
	failures gometrics.Counter
	lost     gometrics.Counter
	elapsed  time.Duration
}

func newResult(registry gometrics.Registry) *result {
	return &result{
		latency:  gometrics.GetOrRegisterHistogram("latency", registry, gometrics.NewExpDecaySample(4096, 0.015)),
		rate:     gometrics.GetOrRegisterMeter("invocations", registry),
		failures: gometrics.GetOrRegisterCounter("failures", registry),
		lost:     gometrics.GetOrRegisterCounter("connection_lost", registry),
	}
}

// record is called by the engine callbacks of all workers
func (r *result) record(resp *common.Response) {
	r.rate.Mark(1)
	switch {
	case resp.Status == common.StatusConnectionLost:
		r.lost.Inc(1)
	case resp.Failure():
		r.failures.Inc(1)
	default:
		r.latency.Update(resp.ClientRoundTrip.Microseconds())
	}
}

func run(_ *cobra.Command, args []string) error {
	procedure := "@Ping"
	var params []any
	if len(args) > 0 {
		procedure = args[0]
		var err error
		if params, err = util.ParseParams(args[1:]); err != nil {
			return err
		}
	}

	config := util.GetClientConfig()
	fmt.Println("Performance testing tool for procedure servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Procedure: %s %v\n", procedure, params)
	fmt.Printf("Workers: %d\n", perfWorkers)
	fmt.Println()

	// connect all workers before starting the clock
	engines := make([]*client.Engine, perfWorkers)
	for i := range engines {
		e, err := util.Connect(config)
		if err != nil {
			return fmt.Errorf("worker %d: %w", i, err)
		}
		engines[i] = e
		defer e.Close()
	}

	if perfMetricsAddr != "" {
		go serveMetrics(perfMetricsAddr, engines)
	}

	registry := gometrics.NewRegistry()
	res := newResult(registry)
	defer res.rate.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if perfCount <= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, perfDuration)
		defer cancel()
	}

	fmt.Println("starting test...")
	start := time.Now()

	var wg sync.WaitGroup
	errs := make([]error, perfWorkers)
	for i, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = work(ctx, e, procedure, params, res)
		}()
	}
	wg.Wait()
	res.elapsed = time.Since(start)

	if err := errors.Join(errs...); err != nil {
		return err
	}

	printResult(procedure, res)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, procedure, res, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// work invokes the procedure on one engine until ctx is done or perfCount
// invocations were queued, then drains the engine
func work(ctx context.Context, e *client.Engine, procedure string, params []any, res *result) error {
	proc := wire.NewProcedure(procedure, len(params))
	if err := proc.BindAll(params...); err != nil {
		return err
	}
	callback := client.CallbackFunc(func(resp *common.Response) (bool, error) {
		res.record(resp)
		return false, nil
	})

	for i := 0; perfCount <= 0 || i < perfCount; i++ {
		if ctx.Err() != nil {
			break
		}
		if _, err := e.InvokeAsync(proc, callback); err != nil {
			return err
		}
		// dispatch what already arrived, InvokeAsync only pumps when blocked
		if i%64 == 0 {
			if err := e.RunOnce(); err != nil {
				return err
			}
		}
	}

	_, err := e.Drain()
	return err
}

// serveMetrics exposes the process and engine metrics in Prometheus format
func serveMetrics(addr string, engines []*client.Engine) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
		for _, e := range engines {
			e.WriteMetrics(w)
		}
	})
	fmt.Printf("Serving metrics on http://%s/metrics\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics server failed: %v\n", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func us(v float64) string {
	return util.FormatDuration(time.Duration(v * float64(time.Microsecond)))
}

// printResult prints the result of a run in a formatted way
func printResult(procedure string, res *result) {
	snapshot := res.latency.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.95, 0.99})
	count := res.rate.Count()
	opsPerSec := float64(count) / max(res.elapsed.Seconds(), 1e-9)

	fmt.Println()
	fmt.Printf("%-20s%d invocations in %s\t%.0f ops/sec\n", procedure, count, util.FormatDuration(res.elapsed), opsPerSec)
	fmt.Printf("%-20s%d failed, %d connection lost\n", "", res.failures.Count(), res.lost.Count())
	fmt.Printf("%-20smean %s, p50 %s, p95 %s, p99 %s, max %s\n", "latency",
		us(snapshot.Mean()), us(ps[0]), us(ps[1]), us(ps[2]), us(float64(snapshot.Max())))
}

// writeResultsToCSV writes the result of a run to a CSV file
func writeResultsToCSV(csvPath string, procedure string, res *result, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Procedure", "Invocations", "Failures", "ConnectionLost", "ElapsedSec", "OpsPerSec",
		"MeanUs", "P50Us", "P99Us", "MaxUs",
		"Endpoints", "ConnectionsPerEndpoint", "Workers", "MaxOutstanding", "MaxQueuedBytes",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	snapshot := res.latency.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.99})
	row := []string{
		procedure,
		strconv.FormatInt(res.rate.Count(), 10),
		strconv.FormatInt(res.failures.Count(), 10),
		strconv.FormatInt(res.lost.Count(), 10),
		fmt.Sprintf("%.3f", res.elapsed.Seconds()),
		fmt.Sprintf("%.0f", float64(res.rate.Count())/max(res.elapsed.Seconds(), 1e-9)),
		fmt.Sprintf("%.1f", snapshot.Mean()),
		fmt.Sprintf("%.1f", ps[0]),
		fmt.Sprintf("%.1f", ps[1]),
		strconv.FormatInt(snapshot.Max(), 10),
		strings.Join(config.Transport.Endpoints, ";"),
		strconv.Itoa(max(1, config.Transport.ConnectionsPerEndpoint)),
		strconv.Itoa(perfWorkers),
		strconv.Itoa(config.Engine.MaxOutstanding),
		strconv.Itoa(config.Engine.MaxQueuedBytes),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %v", err)
	}
	return nil
}
