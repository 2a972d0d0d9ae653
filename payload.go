package wampc

import (
	"fmt"
	"sync"
)

// Payload is a read-only view over the positional (args) and keyword
// (kwargs) arguments of an EVENT, RESULT, INVOCATION or ERROR.
//
// Nothing is converted until it is asked for, and every decode works from the
// same underlying data, so decoding twice yields the same result.
type Payload struct {
	args   []interface{}
	kwargs map[string]interface{}

	once   sync.Once
	values []Value
	kw     map[string]Value
}

// NewPayload wraps args and kwargs. The slices are not copied; callers must
// not modify them afterwards.
func NewPayload(args []interface{}, kwargs map[string]interface{}) *Payload {
	return &Payload{args: args, kwargs: kwargs}
}

// HasArgs reports whether any positional arguments are present.
func (p *Payload) HasArgs() bool { return p != nil && len(p.args) > 0 }

// HasKwargs reports whether any keyword arguments are present.
func (p *Payload) HasKwargs() bool { return p != nil && len(p.kwargs) > 0 }

// Len returns the number of positional arguments.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.args)
}

// Raw returns the arguments exactly as the serializer produced them.
func (p *Payload) Raw() ([]interface{}, map[string]interface{}) {
	if p == nil {
		return nil, nil
	}
	return p.args, p.kwargs
}

func (p *Payload) load() {
	p.once.Do(func() {
		p.values = make([]Value, len(p.args))
		for i := range p.args {
			p.values[i] = ValueOf(p.args[i])
		}
		p.kw = make(map[string]Value, len(p.kwargs))
		for k, v := range p.kwargs {
			p.kw[k] = ValueOf(v)
		}
	})
}

// Args returns the positional arguments as Values.
func (p *Payload) Args() []Value {
	if p == nil {
		return nil
	}
	p.load()
	return p.values
}

// Kwargs returns the keyword arguments as Values.
func (p *Payload) Kwargs() map[string]Value {
	if p == nil {
		return nil
	}
	p.load()
	return p.kw
}

// Arg returns the i-th positional argument.
func (p *Payload) Arg(i int) (Value, bool) {
	if i < 0 || i >= p.Len() {
		return None(), false
	}
	return p.Args()[i], true
}

// DecodeArgs decodes the whole argument list into v, which must be a pointer
// to a slice, an array, or a struct whose fields are filled positionally.
func (p *Payload) DecodeArgs(v interface{}) error {
	var args []interface{}
	if p != nil {
		args = p.args
	}
	if args == nil {
		args = []interface{}{}
	}
	return decodeInto(v, args, "args")
}

// DecodeArg decodes the i-th positional argument into v.
func (p *Payload) DecodeArg(i int, v interface{}) error {
	path := fmt.Sprintf("args[%d]", i)
	if i < 0 || i >= p.Len() {
		return &DecodeError{Path: path, Kind: ErrMissingField}
	}
	return decodeInto(v, p.args[i], path)
}

// DecodeKwargs decodes the keyword arguments into v, which must be a pointer
// to a struct or a map with string keys.
func (p *Payload) DecodeKwargs(v interface{}) error {
	var kwargs map[string]interface{}
	if p != nil {
		kwargs = p.kwargs
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return decodeInto(v, kwargs, "kwargs")
}

// DecodeKwarg decodes a single keyword argument into v.
func (p *Payload) DecodeKwarg(key string, v interface{}) error {
	path := "kwargs." + key
	if p == nil {
		return &DecodeError{Path: path, Kind: ErrMissingField}
	}
	x, ok := p.kwargs[key]
	if !ok {
		return &DecodeError{Path: path, Kind: ErrMissingField}
	}
	return decodeInto(v, x, path)
}

// DecodeArgs is the generic form of Payload.DecodeArgs.
//
//	nums, err := wampc.DecodeArgs[[]int64](p)
func DecodeArgs[T any](p *Payload) (T, error) {
	var v T
	err := p.DecodeArgs(&v)
	return v, err
}

// DecodeKwargs is the generic form of Payload.DecodeKwargs.
func DecodeKwargs[T any](p *Payload) (T, error) {
	var v T
	err := p.DecodeKwargs(&v)
	return v, err
}
