package invoke

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/voltc/cmd/util"
	"github.com/ValentinKolb/voltc/rpc/client"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"maps"
	"os"
	"slices"
)

var (
	// InvokeCmd invokes a single stored procedure
	InvokeCmd = &cobra.Command{
		Use:   "invoke [procedure] [params...]",
		Short: "Invoke a stored procedure",
		Long: `Invoke a stored procedure and print the response.

Parameters are typed by their value (integers become bigint, decimals float,
"null" NULL, everything else a string) or explicitly as TYPE:VALUE, with TYPE
one of tinyint, smallint, int, bigint, float, string, timestamp, varbinary.

Example: voltc invoke Insert int:1 string:hello varbinary:cafe`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupClientFlags(InvokeCmd)

	key := "repeat"
	InvokeCmd.Flags().Int(key, 1, util.WrapString("Invoke the procedure this many times asynchronously and print a summary"))

	key = "json"
	InvokeCmd.Flags().Bool(key, false, util.WrapString("Print the response as JSON"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return util.InitLogging()
}

func run(_ *cobra.Command, args []string) error {
	params, err := util.ParseParams(args[1:])
	if err != nil {
		return err
	}
	proc := wire.NewProcedure(args[0], len(params))
	if err := proc.BindAll(params...); err != nil {
		return err
	}

	e, err := util.Connect(util.GetClientConfig())
	if err != nil {
		return err
	}
	defer e.Close()

	if repeat := viper.GetInt("repeat"); repeat > 1 {
		return invokeRepeated(e, proc, repeat)
	}

	resp, err := e.Invoke(proc)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// invokeRepeated queues repeat invocations and prints how they ended
func invokeRepeated(e *client.Engine, proc *wire.Procedure, repeat int) error {
	statuses := make(map[common.StatusCode]int)
	for i := 0; i < repeat; i++ {
		_, err := e.InvokeAsync(proc, client.CallbackFunc(func(resp *common.Response) (bool, error) {
			statuses[resp.Status]++
			return false, nil
		}))
		if err != nil {
			return err
		}
	}

	drained, err := e.Drain()
	if err != nil {
		return err
	}
	return writeSummary(os.Stdout, proc.ProcedureName(), repeat, statuses, drained)
}

// writeSummary prints the outcome counts of repeated invocations. If the
// drain was interrupted the unresolved invocations are listed and an error
// is returned.
func writeSummary(w io.Writer, procedure string, repeat int, statuses map[common.StatusCode]int, drained bool) error {
	resolved := 0
	fmt.Fprintf(w, "%d invocations of %s\n", repeat, procedure)
	for _, status := range slices.Sorted(maps.Keys(statuses)) {
		fmt.Fprintf(w, "  %-20s: %d\n", status, statuses[status])
		resolved += statuses[status]
	}

	if !drained {
		fmt.Fprintf(w, "  %-20s: %d\n", "unresolved", repeat-resolved)
		return fmt.Errorf("drain was interrupted with %d of %d invocations unresolved", repeat-resolved, repeat)
	}
	return nil
}

func printResponse(resp *common.Response) error {
	if viper.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Print(resp.String())
	if resp.Failure() {
		return fmt.Errorf("procedure failed: %s", resp.Status)
	}
	return nil
}
