package kv

import (
	"github.com/ValentinKolb/voltc/cmd/util"
	"github.com/ValentinKolb/voltc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	engine *client.Engine

	// KeyValueCommands invokes the key-value procedures of the procedure server
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Use the key-value procedures (Put, Get, Delete)",
		PersistentPreRunE:  setupEngine,
		PersistentPostRunE: closeEngine,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common client flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
}

// setupEngine connects the engine used by all subcommands
func setupEngine(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	var err error
	engine, err = util.Connect(util.GetClientConfig())
	return err
}

func closeEngine(*cobra.Command, []string) error {
	if engine == nil {
		return nil
	}
	return engine.Close()
}
