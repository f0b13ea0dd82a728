package server

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
	"time"
)

// --------------------------------------------------------------------------
// System procedures
// --------------------------------------------------------------------------

// NewSystemAdapter returns the procedures every server provides:
//   - @Ping: returns success
//   - Echo: returns its parameters as a single row table (columns p0..pn)
//   - Sleep: sleeps for the given number of milliseconds
func NewSystemAdapter() IProcedureAdapter {
	return &systemAdapterImpl{}
}

type systemAdapterImpl struct{}

func (adapter *systemAdapterImpl) Procedures() map[string]ProcedureFunc {
	return map[string]ProcedureFunc{
		"@Ping": func([]any) *common.Response { return success() },
		"Echo":  echo,
		"Sleep": sleep,
	}
}

func echo(params []any) *common.Response {
	columns := make([]common.Column, len(params))
	for i, p := range params {
		t := common.TypeOf(p)
		if t == common.TypeNull {
			t = common.TypeString
		}
		columns[i] = common.Column{Name: fmt.Sprintf("p%d", i), Type: t}
	}

	table := common.NewTable(columns...)
	if err := table.AddRow(params...); err != nil {
		return failure(common.StatusGracefulFailure, err.Error())
	}
	return success(table)
}

func sleep(params []any) *common.Response {
	if len(params) != 1 {
		return failure(common.StatusGracefulFailure, "Sleep expects one parameter (milliseconds)")
	}
	ms, ok := asInt64(params[0])
	if !ok || ms < 0 {
		return failure(common.StatusGracefulFailure, fmt.Sprintf("invalid sleep duration %v", params[0]))
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return success()
}

// --------------------------------------------------------------------------
// Key-value procedures
// --------------------------------------------------------------------------

// NewKeyValueAdapter returns procedures over an in-memory key-value table:
//   - Put(key string, value string|varbinary)
//   - Get(key string): table (value varbinary) with zero or one row
//   - Delete(key string): aborts with StatusUserAbort if the key is unknown
func NewKeyValueAdapter() IProcedureAdapter {
	return &keyValueAdapterImpl{data: xsync.NewMapOf[string, []byte]()}
}

type keyValueAdapterImpl struct {
	data *xsync.MapOf[string, []byte]
}

func (adapter *keyValueAdapterImpl) Procedures() map[string]ProcedureFunc {
	return map[string]ProcedureFunc{
		"Put":    adapter.put,
		"Get":    adapter.get,
		"Delete": adapter.delete,
	}
}

func (adapter *keyValueAdapterImpl) put(params []any) *common.Response {
	if len(params) != 2 {
		return failure(common.StatusGracefulFailure, "Put expects two parameters (key, value)")
	}
	key, ok := params[0].(string)
	if !ok {
		return failure(common.StatusGracefulFailure, fmt.Sprintf("invalid key type %T", params[0]))
	}

	var value []byte
	switch v := params[1].(type) {
	case []byte:
		value = v
	case string:
		value = []byte(v)
	default:
		return failure(common.StatusGracefulFailure, fmt.Sprintf("invalid value type %T", params[1]))
	}

	adapter.data.Store(key, value)
	return success()
}

func (adapter *keyValueAdapterImpl) get(params []any) *common.Response {
	if len(params) != 1 {
		return failure(common.StatusGracefulFailure, "Get expects one parameter (key)")
	}
	key, ok := params[0].(string)
	if !ok {
		return failure(common.StatusGracefulFailure, fmt.Sprintf("invalid key type %T", params[0]))
	}

	table := common.NewTable(common.Column{Name: "value", Type: common.TypeVarBinary})
	if value, found := adapter.data.Load(key); found {
		_ = table.AddRow(value)
	}
	return success(table)
}

func (adapter *keyValueAdapterImpl) delete(params []any) *common.Response {
	if len(params) != 1 {
		return failure(common.StatusGracefulFailure, "Delete expects one parameter (key)")
	}
	key, ok := params[0].(string)
	if !ok {
		return failure(common.StatusGracefulFailure, fmt.Sprintf("invalid key type %T", params[0]))
	}
	if _, found := adapter.data.LoadAndDelete(key); !found {
		resp := failure(common.StatusUserAbort, fmt.Sprintf("key %q does not exist", key))
		resp.AppStatus = 1
		return resp
	}
	return success()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func success(tables ...*common.Table) *common.Response {
	resp := common.NewResponse(0, common.StatusSuccess)
	resp.Tables = tables
	return resp
}

func failure(status common.StatusCode, msg string) *common.Response {
	return common.NewErrorResponse(0, status, msg)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
