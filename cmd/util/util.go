package util

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/client"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/transport"
	"github.com/ValentinKolb/voltc/rpc/transport/tcp"
	"github.com/ValentinKolb/voltc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the connection and engine flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "timeout"
	cmd.PersistentFlags().Int(key, defaults.TimeoutSecond, WrapString("The connect and login timeout in seconds"))

	key = "username"
	cmd.PersistentFlags().String(key, "", WrapString("The username presented at login"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The password presented at login (sent as a SHA-1 digest)"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, strings.Join(defaults.Transport.Endpoints, ","), WrapString("Comma-separated list of server endpoints. Use host:port for TCP and unix:///path (or an absolute path) for Unix sockets"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for TCP)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for TCP)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for TCP)"))

	key = "engine-max-queued-bytes"
	cmd.PersistentFlags().Int(key, defaults.Engine.MaxQueuedBytes, WrapString("Queued bytes per connection above which the connection is backpressured (0 disables the check)"))

	key = "engine-max-outstanding"
	cmd.PersistentFlags().Int(key, defaults.Engine.MaxOutstanding, WrapString("Unanswered requests per connection above which the connection is backpressured (0 disables the check)"))

	key = "engine-poll-interval"
	cmd.PersistentFlags().Duration(key, defaults.Engine.PollInterval, WrapString("How long the engine waits for I/O before re-checking its exit condition"))

	key = "engine-io-slice"
	cmd.PersistentFlags().Duration(key, defaults.Engine.IOSlice, WrapString("How long one pump pass waits on each connection for reads and writes"))

	key = "engine-reject-on-backpressure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Fail invocations instead of queueing them when all connections are backpressured"))
}

// InitConfig loads .env files and binds environment variables with the
// VOLTC_ prefix (e.g. VOLTC_TRANSPORT_ENDPOINTS=localhost:21212)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("voltc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// InitLogging sets the level of all package loggers from the log-level flag
// and directs them to the log-file flag if set
func InitLogging() error {
	return InitLoggingLevel(viper.GetString("log-level"))
}

// InitLoggingLevel is InitLogging with an explicit level
func InitLoggingLevel(level string) error {
	path := viper.GetString("log-file")
	if path == "" {
		return common.InitLoggers(level)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	return common.InitLoggersTo(file, level)
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := common.DefaultClientConfig()

	conf.TimeoutSecond = viper.GetInt("timeout")
	conf.Username = viper.GetString("username")
	conf.Password = viper.GetString("password")
	conf.Transport = common.ClientTransportConfig{
		Endpoints:              splitList(viper.GetString("transport-endpoints")),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		},
	}
	conf.Engine.MaxQueuedBytes = viper.GetInt("engine-max-queued-bytes")
	conf.Engine.MaxOutstanding = viper.GetInt("engine-max-outstanding")
	if d := viper.GetDuration("engine-poll-interval"); d > 0 {
		conf.Engine.PollInterval = d
	}
	if d := viper.GetDuration("engine-io-slice"); d > 0 {
		conf.Engine.IOSlice = d
	}
	conf.Engine.RejectOnBackpressure = viper.GetBool("engine-reject-on-backpressure")

	return &conf
}

// Connect creates an engine for config and connects it to every endpoint
func Connect(config *common.ClientConfig, opts ...client.Option) (*client.Engine, error) {
	e := client.NewEngine(*config, opts...)
	if err := e.Connect(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// GetServerTransport picks the server transport for an endpoint and returns
// the endpoint without its scheme
func GetServerTransport(endpoint string) (transport.IServerTransport, string) {
	switch {
	case strings.HasPrefix(endpoint, "unix://"):
		return unix.NewUnixServerTransport(), strings.TrimPrefix(endpoint, "unix://")
	case strings.HasPrefix(endpoint, "/"):
		return unix.NewUnixServerTransport(), endpoint
	default:
		return tcp.NewTCPServerTransport(), strings.TrimPrefix(endpoint, "tcp://")
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// FormatDuration prints a duration with a precision fitting its size
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
