// Package clarity implements the Clarity value wire format used by Stacks
// smart contracts: binary (de)serialization, c32check principals and the
// JSON-safe rendering returned to API callers.
package clarity

import (
	"math/big"
	"sort"
)

// Type is the one-byte tag that prefixes every serialized value
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUInt              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeTrue              Type = 0x03
	TypeFalse             Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeNone              Type = 0x09
	TypeSome              Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

// Value is any Clarity value
type Value interface {
	Type() Type
}

// Int is a signed 128-bit integer
type Int struct {
	V *big.Int
}

// UInt is an unsigned 128-bit integer
type UInt struct {
	V *big.Int
}

// Buffer is a raw byte buffer
type Buffer []byte

// Bool is a boolean
type Bool bool

// StandardPrincipal is an account address
type StandardPrincipal struct {
	Version byte
	Hash160 [20]byte
}

// ContractPrincipal is a contract identifier: issuer address plus name
type ContractPrincipal struct {
	Issuer StandardPrincipal
	Name   string
}

// ResponseOk wraps a successful response
type ResponseOk struct {
	Value Value
}

// ResponseErr wraps an error response
type ResponseErr struct {
	Value Value
}

// None is an absent optional
type None struct{}

// Some is a present optional
type Some struct {
	Value Value
}

// List is an ordered sequence of values
type List []Value

// Tuple is a named record. Keys serialize in lexicographic order.
type Tuple map[string]Value

// StringASCII is an ASCII string
type StringASCII string

// StringUTF8 is a UTF-8 string
type StringUTF8 string

func (Int) Type() Type               { return TypeInt }
func (UInt) Type() Type              { return TypeUInt }
func (Buffer) Type() Type            { return TypeBuffer }
func (StandardPrincipal) Type() Type { return TypeStandardPrincipal }
func (ContractPrincipal) Type() Type { return TypeContractPrincipal }
func (ResponseOk) Type() Type        { return TypeResponseOk }
func (ResponseErr) Type() Type       { return TypeResponseErr }
func (None) Type() Type              { return TypeNone }
func (Some) Type() Type              { return TypeSome }
func (List) Type() Type              { return TypeList }
func (Tuple) Type() Type             { return TypeTuple }
func (StringASCII) Type() Type       { return TypeStringASCII }
func (StringUTF8) Type() Type        { return TypeStringUTF8 }

func (b Bool) Type() Type {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

// NewUInt builds a UInt from a uint64
func NewUInt(v uint64) UInt {
	return UInt{V: new(big.Int).SetUint64(v)}
}

// NewInt builds an Int from an int64
func NewInt(v int64) Int {
	return Int{V: big.NewInt(v)}
}

// String renders the c32 address of a standard principal
func (p StandardPrincipal) String() string {
	return C32Address(p.Version, p.Hash160)
}

// String renders "<issuer>.<name>"
func (p ContractPrincipal) String() string {
	return p.Issuer.String() + "." + p.Name
}

// SortedKeys returns the tuple keys in serialization order
func (t Tuple) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unwrap strips ok/err/some wrappers. ok reports false for none.
func Unwrap(v Value) (Value, bool) {
	for {
		switch t := v.(type) {
		case ResponseOk:
			v = t.Value
		case ResponseErr:
			v = t.Value
		case Some:
			v = t.Value
		case None:
			return nil, false
		default:
			return v, v != nil
		}
	}
}
