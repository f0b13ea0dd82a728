package kv

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/ValentinKolb/voltc/rpc/wire"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := call("Put", args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call("Get", args[0])
			if err != nil {
				return err
			}
			if len(resp.Tables) == 0 || resp.Tables[0].RowCount() == 0 {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			fmt.Printf("key=%s, found=true, value=%s\n", args[0], resp.Tables[0].Rows[0][0])
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := call("Delete", args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
)

// call invokes a procedure and turns a failure status into an error
func call(procedure string, params ...any) (*common.Response, error) {
	proc := wire.NewProcedure(procedure, len(params))
	if err := proc.BindAll(params...); err != nil {
		return nil, err
	}
	resp, err := engine.Invoke(proc)
	if err != nil {
		return nil, err
	}
	if resp.Failure() {
		return resp, fmt.Errorf("%s failed (%s): %s", procedure, resp.Status, resp.StatusString)
	}
	return resp, nil
}
