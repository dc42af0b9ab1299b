package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// ErrCodec is the root of every encoding and decoding failure
var ErrCodec = errors.New("clarity codec error")

const (
	maxContractNameLen = 128
	maxTupleKeyLen     = 128
	maxDepth           = 32
)

var (
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
	maxUInt   = new(big.Int).Sub(two128, big.NewInt(1))
	maxInt    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt    = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	errNilInt = errors.Wrap(ErrCodec, "nil integer")
)

// Serialize encodes v in the Clarity binary format
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := serializeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeHex encodes v as lowercase hex without a 0x prefix
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func serializeInto(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return errors.Wrap(ErrCodec, "cannot serialize nil value")
	}
	buf.WriteByte(byte(v.Type()))

	switch t := v.(type) {
	case Int:
		if t.V == nil {
			return errNilInt
		}
		if t.V.Cmp(minInt) < 0 || t.V.Cmp(maxInt) > 0 {
			return errors.Wrapf(ErrCodec, "int %s out of 128-bit range", t.V)
		}
		n := new(big.Int).Set(t.V)
		if n.Sign() < 0 {
			n.Add(n, two128)
		}
		buf.Write(n.FillBytes(make([]byte, 16)))
	case UInt:
		if t.V == nil {
			return errNilInt
		}
		if t.V.Sign() < 0 || t.V.Cmp(maxUInt) > 0 {
			return errors.Wrapf(ErrCodec, "uint %s out of 128-bit range", t.V)
		}
		buf.Write(t.V.FillBytes(make([]byte, 16)))
	case Buffer:
		writeLen(buf, len(t))
		buf.Write(t)
	case Bool, None:
	case StandardPrincipal:
		buf.WriteByte(t.Version)
		buf.Write(t.Hash160[:])
	case ContractPrincipal:
		if len(t.Name) == 0 || len(t.Name) > maxContractNameLen {
			return errors.Wrapf(ErrCodec, "invalid contract name length %d", len(t.Name))
		}
		buf.WriteByte(t.Issuer.Version)
		buf.Write(t.Issuer.Hash160[:])
		buf.WriteByte(byte(len(t.Name)))
		buf.WriteString(t.Name)
	case ResponseOk:
		return serializeInto(buf, t.Value)
	case ResponseErr:
		return serializeInto(buf, t.Value)
	case Some:
		return serializeInto(buf, t.Value)
	case List:
		writeLen(buf, len(t))
		for _, item := range t {
			if err := serializeInto(buf, item); err != nil {
				return err
			}
		}
	case Tuple:
		writeLen(buf, len(t))
		for _, key := range t.SortedKeys() {
			if len(key) == 0 || len(key) > maxTupleKeyLen {
				return errors.Wrapf(ErrCodec, "invalid tuple key length %d", len(key))
			}
			buf.WriteByte(byte(len(key)))
			buf.WriteString(key)
			if err := serializeInto(buf, t[key]); err != nil {
				return err
			}
		}
	case StringASCII:
		for i := 0; i < len(t); i++ {
			if t[i] > 0x7f {
				return errors.Wrap(ErrCodec, "string-ascii contains non-ascii byte")
			}
		}
		writeLen(buf, len(t))
		buf.WriteString(string(t))
	case StringUTF8:
		writeLen(buf, len(t))
		buf.WriteString(string(t))
	default:
		return errors.Wrapf(ErrCodec, "unsupported value %T", v)
	}
	return nil
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

// ParsePrincipal parses "SP..." or "SP....contract-name"
func ParsePrincipal(s string) (Value, error) {
	addr, name, isContract := strings.Cut(strings.TrimSpace(s), ".")
	version, hash, err := C32AddressDecode(addr)
	if err != nil {
		return nil, err
	}

	issuer := StandardPrincipal{Version: version, Hash160: hash}
	if !isContract {
		return issuer, nil
	}
	if len(name) == 0 || len(name) > maxContractNameLen {
		return nil, errors.Wrapf(ErrCodec, "invalid contract name %q", name)
	}
	return ContractPrincipal{Issuer: issuer, Name: name}, nil
}
