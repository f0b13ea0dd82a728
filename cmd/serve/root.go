package serve

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/voltc/cmd/util"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/server"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a procedure server",
		Long:    `Start a procedure server with the built-in procedures (@Ping, Echo, Sleep, Put, Get, Delete). The configuration can be set via command line flags or environment variables. The format of the environment variables is VOLTC_<flag> (e.g. VOLTC_LATENCY=5ms)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultServerConfig()

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Transport.Endpoint, cmdUtil.WrapString("The address on which the server will listen (e.g. 0.0.0.0:21212, unix:///tmp/voltc.sock, /tmp/voltc.sock)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Read and write timeout per connection in seconds (0 disables the timeout)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxWorkersPerConn, cmdUtil.WrapString("Maximum number of requests executed concurrently per connection. Responses are only written in request order with a single worker"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, defaults.BufferSize, cmdUtil.WrapString("Size of the per request read buffer in bytes"))

	key = "latency"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Latency added to every procedure execution (e.g. 5ms)"))

	key = "username"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Username required at login. If empty, every login is accepted"))

	key = "password"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password required at login"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections"))

	key = "metrics-addr"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Serve Prometheus metrics on this address (e.g. :9100)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxWorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size")
	serveCmdConfig.Latency = viper.GetDuration("latency")
	serveCmdConfig.Username = viper.GetString("username")
	serveCmdConfig.Password = viper.GetString("password")
	serveCmdConfig.Transport.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if serveCmdConfig.Password != "" && serveCmdConfig.Username == "" {
		return fmt.Errorf("password given without username")
	}

	return cmdUtil.InitLoggingLevel(serveCmdConfig.LogLevel)
}

// run starts the procedure server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	t, endpoint := cmdUtil.GetServerTransport(serveCmdConfig.Transport.Endpoint)
	serveCmdConfig.Transport.Endpoint = endpoint

	serv := server.NewProcedureServer(serveCmdConfig, t)
	if err := serv.Bind(); err != nil {
		return err
	}

	if addr := viper.GetString("metrics-addr"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
				metrics.WritePrometheus(w, true)
				serv.WriteMetrics(w)
			})
			server.Logger.Infof("Serving metrics on http://%s/metrics", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				server.Logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		server.Logger.Infof("Shutting down procedure server")
		_ = serv.Close()
	}()

	return serv.Serve()
}
