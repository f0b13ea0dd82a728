package cmd

import (
	"fmt"
	"github.com/ValentinKolb/voltc/cmd/invoke"
	"github.com/ValentinKolb/voltc/cmd/kv"
	"github.com/ValentinKolb/voltc/cmd/perf"
	"github.com/ValentinKolb/voltc/cmd/serve"
	"github.com/ValentinKolb/voltc/cmd/util"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "voltc",
		Short: "asynchronous stored procedure client",
		Long: fmt.Sprintf(`voltc (v%s)

An asynchronous client for stored procedure databases speaking a length
prefixed binary protocol, with a procedure server for testing.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of voltc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voltc v%s (protocol version %d)\n", Version, common.ProtocolVersion)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(invoke.InvokeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "log-file"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Append logs to this file instead of writing them to stderr"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
