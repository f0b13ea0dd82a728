package wire

import (
	"fmt"
	"github.com/ValentinKolb/voltc/rpc/common"
)

// IInvocation is a stored procedure call that can be written into a request
// frame. Implementations marshal their own parameters.
type IInvocation interface {
	// ProcedureName returns the name of the stored procedure to invoke
	ProcedureName() string
	// Validate fails with common.ErrIncompleteParameters if a declared
	// parameter has not been bound
	Validate() error
	// AppendParams appends the encoded parameter set to dst
	AppendParams(dst []byte) ([]byte, error)
}

// Procedure is the default IInvocation: a procedure name plus a fixed number
// of positional parameters that must all be bound before invoking.
//
// Supported parameter values are nil, int8, int16, int32, int64, int,
// float32, float64, string, time.Time and []byte.
type Procedure struct {
	name   string
	params []any
	bound  []bool
}

// NewProcedure creates a procedure with arity unbound parameters
func NewProcedure(name string, arity int) *Procedure {
	return &Procedure{
		name:   name,
		params: make([]any, arity),
		bound:  make([]bool, arity),
	}
}

// Bind sets the parameter at index
func (p *Procedure) Bind(index int, value any) error {
	if index < 0 || index >= len(p.params) {
		return fmt.Errorf("parameter index %d out of range, %s takes %d parameters", index, p.name, len(p.params))
	}
	if common.TypeOf(value) == common.TypeInvalid {
		return fmt.Errorf("parameter %d of %s: unsupported type %T", index, p.name, value)
	}
	p.params[index] = value
	p.bound[index] = true
	return nil
}

// BindAll binds values to the parameters in order
func (p *Procedure) BindAll(values ...any) error {
	if len(values) != len(p.params) {
		return fmt.Errorf("%s takes %d parameters, got %d", p.name, len(p.params), len(values))
	}
	for i, v := range values {
		if err := p.Bind(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Reset unbinds all parameters so the procedure can be reused
func (p *Procedure) Reset() {
	for i := range p.params {
		p.params[i] = nil
		p.bound[i] = false
	}
}

// Params returns the bound parameter values
func (p *Procedure) Params() []any {
	return p.params
}

// --------------------------------------------------------------------------
// Interface Methods (docu see wire.IInvocation)
// --------------------------------------------------------------------------

func (p *Procedure) ProcedureName() string {
	return p.name
}

func (p *Procedure) Validate() error {
	for i, ok := range p.bound {
		if !ok {
			return fmt.Errorf("%w: parameter %d of %s", common.ErrIncompleteParameters, i, p.name)
		}
	}
	return nil
}

func (p *Procedure) AppendParams(dst []byte) ([]byte, error) {
	return appendParams(dst, p.params)
}

// --------------------------------------------------------------------------
// Parameter set encoding: int16 count + (type byte, value)*
// --------------------------------------------------------------------------

func appendParams(dst []byte, params []any) ([]byte, error) {
	if len(params) > 32767 {
		return nil, fmt.Errorf("too many parameters: %d", len(params))
	}
	dst = appendInt16(dst, int16(len(params)))
	for i, v := range params {
		var err error
		if dst, err = appendTypedValue(dst, v); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return dst, nil
}

func readParams(v *View) ([]any, error) {
	count, err := v.Int16()
	if err != nil {
		return nil, fmt.Errorf("parameter count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative parameter count %d", common.ErrMalformedFrame, count)
	}
	params := make([]any, count)
	for i := range params {
		if params[i], err = readTypedValue(v); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return params, nil
}
