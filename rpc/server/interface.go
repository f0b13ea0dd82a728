package server

import "github.com/ValentinKolb/voltc/rpc/common"

// ProcedureFunc executes one invocation with its decoded parameters and
// returns the response. The server fills in the correlation id and the
// cluster round trip time. A nil response is treated as success without
// result tables, a panic as an unexpected failure.
type ProcedureFunc func(params []any) *common.Response

// IProcedureAdapter bundles procedures that are registered together
type IProcedureAdapter interface {
	// Procedures returns the procedures of the adapter by name
	Procedures() map[string]ProcedureFunc
}
