// Package fake provides fake implementations for the interfaces of the
// marshall package. The implementations offer configuration to return
// errors when the unit test needs them and record the calls they receive.
package fake

import (
	"reflect"

	"golang.org/x/xerrors"
)

// GetError returns the error of a fake.
func GetError() error {
	return xerrors.New("fake error")
}

// Call is a tool to keep track of a function calls.
type Call struct {
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.calls = append(c.calls, args)
}

// Codec is a fake implementation of marshall.Codec. It handles the values
// of the sample's type and passes the value through Encode unless a
// decoded value is configured.
type Codec struct {
	Call      *Call
	Decoded   interface{}
	ErrEncode error
	ErrDecode error

	typ reflect.Type
}

// NewCodec returns a codec handling values of the sample's type.
func NewCodec(sample interface{}) *Codec {
	return &Codec{
		Call: &Call{},
		typ:  reflect.TypeOf(sample),
	}
}

// NewBadCodec returns a codec that fails to encode and decode.
func NewBadCodec(sample interface{}) *Codec {
	codec := NewCodec(sample)
	codec.ErrEncode = GetError()
	codec.ErrDecode = GetError()

	return codec
}

// Handles implements marshall.Codec.
func (c *Codec) Handles(value interface{}) bool {
	return reflect.TypeOf(value) == c.typ
}

// Encode implements marshall.Codec.
func (c *Codec) Encode(value interface{}) (interface{}, error) {
	c.Call.Add("encode", value)

	if c.ErrEncode != nil {
		return nil, c.ErrEncode
	}

	return value, nil
}

// Decode implements marshall.Codec.
func (c *Codec) Decode(params interface{}) (interface{}, error) {
	c.Call.Add("decode", params)

	if c.ErrDecode != nil {
		return nil, c.ErrDecode
	}

	if c.Decoded != nil {
		return c.Decoded, nil
	}

	return params, nil
}

// Factory is a fake implementation of marshall.Factory.
type Factory struct {
	Call     *Call
	Instance interface{}
	Err      error
}

// NewFactory returns a factory creating the given instance.
func NewFactory(instance interface{}) *Factory {
	return &Factory{
		Call:     &Call{},
		Instance: instance,
	}
}

// NewBadFactory returns a factory that always fails.
func NewBadFactory() *Factory {
	return &Factory{
		Call: &Call{},
		Err:  GetError(),
	}
}

// New implements marshall.Factory.
func (f *Factory) New(fields map[string]interface{}) (interface{}, error) {
	f.Call.Add(fields)

	if f.Err != nil {
		return nil, f.Err
	}

	return f.Instance, nil
}
