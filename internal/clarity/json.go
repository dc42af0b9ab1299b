package clarity

import (
	"encoding/hex"
)

// ToJSON renders v as a JSON-safe tree. Integers become decimal strings,
// none becomes nil, and ok/err/some collapse to their inner value.
func ToJSON(v Value) any {
	switch t := v.(type) {
	case Int:
		return t.V.String()
	case UInt:
		return t.V.String()
	case Buffer:
		return "0x" + hex.EncodeToString(t)
	case Bool:
		return bool(t)
	case StandardPrincipal:
		return t.String()
	case ContractPrincipal:
		return t.String()
	case ResponseOk:
		return ToJSON(t.Value)
	case ResponseErr:
		return ToJSON(t.Value)
	case Some:
		return ToJSON(t.Value)
	case None:
		return nil
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToJSON(item)
		}
		return out
	case Tuple:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToJSON(item)
		}
		return out
	case StringASCII:
		return string(t)
	case StringUTF8:
		return string(t)
	}
	return nil
}
