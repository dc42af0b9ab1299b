package clarity

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// ArgumentType tags a FunctionArgument
type ArgumentType string

const (
	ArgPrincipal ArgumentType = "principal"
	ArgUint      ArgumentType = "uint"
)

// FunctionArgument is a typed contract call argument as sent by API clients.
// Value holds the address or the decimal integer text.
type FunctionArgument struct {
	Type  ArgumentType `json:"type"`
	Value string       `json:"value"`
}

// PrincipalArg builds a principal argument
func PrincipalArg(address string) FunctionArgument {
	return FunctionArgument{Type: ArgPrincipal, Value: address}
}

// UintArg builds an unsigned integer argument
func UintArg(n *big.Int) FunctionArgument {
	return FunctionArgument{Type: ArgUint, Value: n.String()}
}

// UnmarshalJSON accepts the value either as a JSON string or a JSON number,
// keeping the number's literal text so large integers are not rounded.
func (a *FunctionArgument) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  ArgumentType    `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Type = raw.Type
	a.Value = ""
	v := bytes.TrimSpace(raw.Value)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
	case v[0] == '"':
		if err := json.Unmarshal(v, &a.Value); err != nil {
			return err
		}
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return errors.Errorf("argument value must be a string or number, got %s", v)
		}
		a.Value = n.String()
	}
	return nil
}

// ToValue converts the argument into a Clarity value
func (a FunctionArgument) ToValue() (Value, error) {
	switch a.Type {
	case ArgPrincipal:
		return ParsePrincipal(a.Value)
	case ArgUint:
		n, ok := new(big.Int).SetString(strings.TrimSpace(a.Value), 10)
		if !ok || n.Sign() < 0 {
			return nil, errors.Wrapf(ErrCodec, "invalid uint argument %q", a.Value)
		}
		return UInt{V: n}, nil
	}
	return nil, errors.Wrapf(ErrCodec, "unsupported argument type %q", a.Type)
}

// EncodeArgument serializes a to hex without a 0x prefix
func EncodeArgument(a FunctionArgument) (string, error) {
	v, err := a.ToValue()
	if err != nil {
		return "", err
	}
	return SerializeHex(v)
}
